package pokemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"

	"github.com/m3rciful/kaoribot/core/errs"
)

// Pokemon is one species with its official artwork.
type Pokemon struct {
	ID      int
	Name    string
	Artwork string
}

// Client fetches species from a PokeAPI compatible endpoint.
type Client struct {
	http  *http.Client
	base  string
	maxID int
	pick  func(n int) int
}

// NewClient builds a client for base, e.g. "https://pokeapi.co/api/v2".
// Random draws national dex numbers from 1 to maxID.
func NewClient(hc *http.Client, base string, maxID int) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if maxID <= 0 {
		maxID = 1025
	}
	return &Client{http: hc, base: strings.TrimRight(base, "/"), maxID: maxID, pick: rand.IntN}
}

type speciesResponse struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Sprites struct {
		Front string `json:"front_default"`
		Other map[string]struct {
			Front string `json:"front_default"`
		} `json:"other"`
	} `json:"sprites"`
}

// Random fetches a random species that has artwork.
func (c *Client) Random(ctx context.Context) (Pokemon, error) {
	return c.Get(ctx, c.pick(c.maxID)+1)
}

// Get fetches the species with the given dex number.
func (c *Client) Get(ctx context.Context, id int) (Pokemon, error) {
	url := c.base + "/pokemon/" + strconv.Itoa(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Pokemon{}, errs.Wrap("build pokeapi request", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return Pokemon{}, errs.WrapCode(errs.CodeUpstream, "pokeapi request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Pokemon{}, errs.WrapCode(errs.CodeUpstream, "pokeapi request",
			fmt.Errorf("pokemon %d: unexpected status %d", id, resp.StatusCode))
	}

	var body speciesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Pokemon{}, errs.Wrap("decode pokeapi response", err)
	}
	art := body.Sprites.Other["official-artwork"].Front
	if art == "" {
		art = body.Sprites.Front
	}
	if body.Name == "" || art == "" {
		return Pokemon{}, fmt.Errorf("pokemon %d: incomplete species data", id)
	}
	return Pokemon{ID: body.ID, Name: body.Name, Artwork: art}, nil
}
