package view

import (
	"github.com/kjstillabower/travel-discovery-service/internal/coordinator"
	"github.com/kjstillabower/travel-discovery-service/internal/viewport"
)

// Page is everything one session renders.
type Page struct {
	List    List                    `json:"list"`
	Map     Map                     `json:"map"`
	Search  coordinator.SearchState `json:"search"`
	Loading bool                    `json:"loading"`
}

// NewPage renders a full page.
func NewPage(st coordinator.State, search coordinator.SearchState, v viewport.View) Page {
	return Page{
		List:    NewList(st),
		Map:     NewMap(st, v),
		Search:  search,
		Loading: st.IsLoading,
	}
}
