// Package view renders coordinator state into the models the UI draws:
// the place list, the map and the place detail card.
package view

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kjstillabower/travel-discovery-service/internal/models"
)

const maxCuisines = 3

var printer = message.NewPrinter(language.English)

// Card is one place as drawn in the list.
type Card struct {
	Index       int      `json:"index"`
	Selected    bool     `json:"selected"`
	Name        string   `json:"name"`
	ImageURL    string   `json:"imageUrl"`
	AwardWinner bool     `json:"awardWinner"`
	Rating      string   `json:"rating,omitempty"`
	Reviews     string   `json:"reviews,omitempty"`
	Price       string   `json:"price,omitempty"`
	Ranking     string   `json:"ranking,omitempty"`
	Cuisines    []string `json:"cuisines,omitempty"`
	Address     string   `json:"address,omitempty"`
	PhoneURL    string   `json:"phoneUrl,omitempty"`
	Website     string   `json:"website,omitempty"`
	MoreInfoURL string   `json:"moreInfoUrl,omitempty"`
	Distance    string   `json:"distance,omitempty"`
}

// NewCard renders p at position index of the displayed list.
func NewCard(p models.Place, index int, selected bool) Card {
	c := Card{
		Index:       index,
		Selected:    selected,
		Name:        p.Name,
		ImageURL:    p.Photo.BestURL(),
		AwardWinner: len(p.Awards) > 0,
		Address:     p.Address,
		Website:     p.Website,
		MoreInfoURL: p.WebURL,
		Distance:    p.Distance,
	}
	if p.Rating.Truthy() {
		c.Rating = p.Rating.String()
		c.Reviews = printer.Sprintf("(%d)", p.NumReviews)
	}
	if p.PriceLevel > 0 {
		c.Price = strings.Repeat("$", p.PriceLevel)
	}
	if p.Ranking != "" {
		c.Ranking = "#" + p.Ranking
	}
	for i, cu := range p.Cuisine {
		if i == maxCuisines {
			break
		}
		c.Cuisines = append(c.Cuisines, cu.Name)
	}
	if p.Phone != "" {
		c.PhoneURL = "tel:" + p.Phone
	}
	return c
}
