package memberful

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
)

var collectionNameRegex = regexp.MustCompile(`(\w+)\(after:\s*\$cursor`)

// CollectionName finds the paginated collection in a query by looking for
// `<name>(after: $cursor`. The query must mention exactly one such collection.
func CollectionName(query string) (string, error) {
	var found string
	for _, groups := range collectionNameRegex.FindAllStringSubmatch(query, -1) {
		if found != "" && found != groups[1] {
			return "", ParseError{Message: fmt.Sprintf(
				"ambiguous collection name, query paginates both %q and %q", found, groups[1],
			)}
		}
		found = groups[1]
	}
	if found == "" {
		return "", ParseError{Message: "could not parse collection name"}
	}
	return found, nil
}

type PageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

// PageInfoFunc extracts the page info out of the `data` of a response.
type PageInfoFunc func(page json.RawMessage) (PageInfo, error)

type collectionPage struct {
	TotalCount *int     `json:"totalCount"`
	PageInfo   PageInfo `json:"pageInfo"`
	Edges      []struct {
		Node json.RawMessage `json:"node"`
	} `json:"edges"`
}

func decodeCollectionPage(page json.RawMessage, collection string) (collectionPage, error) {
	var data map[string]json.RawMessage
	err := json.Unmarshal(page, &data)
	if err != nil {
		return collectionPage{}, ConsistencyError{Message: fmt.Sprintf("response is not an object: %s", err.Error())}
	}
	raw, ok := data[collection]
	if !ok || string(raw) == "null" {
		return collectionPage{}, ConsistencyError{Message: fmt.Sprintf("response is missing collection %q", collection)}
	}
	var out collectionPage
	err = json.Unmarshal(raw, &out)
	if err != nil {
		return collectionPage{}, ConsistencyError{Message: fmt.Sprintf("collection %q: %s", collection, err.Error())}
	}
	return out, nil
}

// CollectionPageInfo reads `<collection>.pageInfo`.
func CollectionPageInfo(collection string) PageInfoFunc {
	return func(page json.RawMessage) (PageInfo, error) {
		decoded, err := decodeCollectionPage(page, collection)
		if err != nil {
			return PageInfo{}, err
		}
		return decoded.PageInfo, nil
	}
}

// Pages executes a cursor paginated query page by page.
//
//	pages, err := api.Query(query, vars, memberful.CollectionPageInfo("members"))
//	for pages.Next(ctx) {
//		page := pages.Page()
//	}
//	err = pages.Err()
//
// It cannot be restarted, create a new one with API.Query instead.
type Pages struct {
	api       *API
	query     string
	variables map[string]any
	pageInfo  PageInfoFunc

	cursor  string
	done    bool
	pending error

	page  json.RawMessage
	count int
	err   error
}

// Query prepares a paginated execution of query. The variable `$cursor` is
// managed by Pages and must not be among the given variables.
func (a *API) Query(query string, variables map[string]any, pageInfo PageInfoFunc) (*Pages, error) {
	if pageInfo == nil {
		return nil, ParseError{Message: "page info accessor was not specified"}
	}
	if _, ok := variables["cursor"]; ok {
		return nil, ParseError{Message: "variable 'cursor' is reserved for pagination"}
	}
	return &Pages{
		api:       a,
		query:     query,
		variables: variables,
		pageInfo:  pageInfo,
	}, nil
}

// Next executes the query for the next page, it returns false once the last
// page was returned or on error.
func (p *Pages) Next(ctx context.Context) bool {
	if p.err != nil || p.done {
		return false
	}
	if p.pending != nil {
		p.err = p.pending
		return false
	}

	variables := make(map[string]any, len(p.variables)+1)
	for k, v := range p.variables {
		variables[k] = v
	}
	variables["cursor"] = p.cursor

	p.api.tel.ReportDebug("sending a query", "cursor", p.cursor)
	page, err := p.api.Execute(ctx, p.query, variables)
	if err != nil {
		p.err = err
		return false
	}
	info, err := p.pageInfo(page)
	if err != nil {
		p.err = err
		return false
	}

	p.page = page
	p.count++

	switch {
	case !info.HasNextPage:
		p.done = true
	case info.EndCursor == nil:
		p.pending = ConsistencyError{Message: fmt.Sprintf(
			"page %d declares a next page but no end cursor", p.count,
		)}
	default:
		p.cursor = *info.EndCursor
	}
	return true
}

// Page returns the `data` of the page Next moved to.
func (p *Pages) Page() json.RawMessage {
	return p.page
}

// Count returns how many pages were returned so far.
func (p *Pages) Count() int {
	return p.count
}

func (p *Pages) Err() error {
	return p.err
}
