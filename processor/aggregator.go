package processor

import (
	"fmt"

	"optionflow/models"
)

// Aggregate reduces normalized books to one depth summary per liquid
// book, summing notionals over the whole of each side and reporting
// them in thousands of USD. Illiquid books (either side empty) emit no
// row; the output keeps the relative order of the input.
func Aggregate(books []models.NormalizedBook) []models.DepthSummary {
	return aggregate(books, 0)
}

// AggregateTop behaves like Aggregate but restricts each side's sum to
// its first levels entries, i.e. the best levels in the side's own
// ordering. Sides shorter than levels are summed in full. levels must
// be positive.
func AggregateTop(books []models.NormalizedBook, levels int) ([]models.DepthSummary, error) {
	if levels <= 0 {
		return nil, &InvalidParameterError{
			Param:  "levels",
			Reason: fmt.Sprintf("must be positive, got %d", levels),
		}
	}
	return aggregate(books, levels), nil
}

func aggregate(books []models.NormalizedBook, levels int) []models.DepthSummary {
	summaries := make([]models.DepthSummary, 0, len(books))
	for _, book := range books {
		if !book.Liquid() {
			continue
		}
		summaries = append(summaries, models.DepthSummary{
			InstrumentName:       book.InstrumentName,
			BidNotionalThousands: sideNotional(book.Bids, levels) / 1000,
			AskNotionalThousands: sideNotional(book.Asks, levels) / 1000,
		})
	}
	return summaries
}

// sideNotional sums NotionalUSD over the first top levels, or the whole
// side when top is zero or exceeds its length.
func sideNotional(side []models.PriceLevel, top int) float64 {
	if top > 0 && top < len(side) {
		side = side[:top]
	}
	var sum float64
	for _, lvl := range side {
		sum += lvl.NotionalUSD
	}
	return sum
}
