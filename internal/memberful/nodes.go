package memberful

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Tinuki562/junior.guru/internal/cache"
)

const report_nodes_duplicates = "nodes.duplicates"

type NodesOptions struct {
	// Collection is the name of the paginated collection, when empty it is
	// parsed out of the query with CollectionName.
	Collection string
	// StrictDuplicates fails the stream on any duplicate node. By default
	// duplicates are dropped and only count mismatches fail the stream.
	StrictDuplicates bool
}

// Nodes iterates over `edges[].node` of every page of a paginated query,
// dropping nodes it has already seen. Memberful is known to return the same
// edge on multiple pages.
//
// Once drained, Err reports a ConsistencyError if the number of unique nodes
// does not match the `totalCount` Memberful declared.
type Nodes struct {
	pages      *Pages
	collection string
	strict     bool

	declared *int
	buffer   []json.RawMessage
	seen     map[string]struct{}

	yielded    int
	duplicates int

	node json.RawMessage
	err  error
	done bool
}

// Nodes prepares a deduplicated node stream for query. It fails right away
// with a ParseError if the collection name is neither given nor parseable.
func (a *API) Nodes(query string, variables map[string]any, opts NodesOptions) (*Nodes, error) {
	collection := opts.Collection
	if collection == "" {
		var err error
		collection, err = CollectionName(query)
		if err != nil {
			return nil, err
		}
	}
	pages, err := a.Query(query, variables, CollectionPageInfo(collection))
	if err != nil {
		return nil, err
	}
	return &Nodes{
		pages:      pages,
		collection: collection,
		strict:     opts.StrictDuplicates,
		seen:       map[string]struct{}{},
	}, nil
}

var falsyIds = [][]byte{
	[]byte(`null`),
	[]byte(`""`),
	[]byte(`0`),
	[]byte(`false`),
}

// nodeIdentity is the node's `id`, or a hash of the whole node when it has none.
func nodeIdentity(node json.RawMessage) (string, error) {
	var fields map[string]json.RawMessage
	err := json.Unmarshal(node, &fields)
	if err != nil || fields == nil {
		return "", ConsistencyError{Message: fmt.Sprintf("node is not an object: %s", string(node))}
	}
	if id, ok := fields["id"]; ok {
		id = bytes.TrimSpace(id)
		falsy := false
		for _, f := range falsyIds {
			if bytes.Equal(id, f) {
				falsy = true
				break
			}
		}
		if !falsy {
			return "id:" + string(id), nil
		}
	}
	hash, err := cache.HashData(node)
	if err != nil {
		return "", err
	}
	return "hash:" + hash, nil
}

func (n *Nodes) Next(ctx context.Context) bool {
	for {
		if n.err != nil || n.done {
			return false
		}

		if len(n.buffer) > 0 {
			node := n.buffer[0]
			n.buffer = n.buffer[1:]

			id, err := nodeIdentity(node)
			if err != nil {
				n.err = err
				return false
			}
			if _, seen := n.seen[id]; seen {
				n.pages.api.tel.ReportDebug("dropping a duplicate node", id)
				n.duplicates++
				continue
			}
			n.seen[id] = struct{}{}
			n.yielded++
			n.node = node
			return true
		}

		if !n.pages.Next(ctx) {
			n.done = true
			n.err = n.pages.Err()
			if n.err == nil {
				n.err = n.verify()
			}
			return false
		}

		page, err := decodeCollectionPage(n.pages.Page(), n.collection)
		if err != nil {
			n.err = err
			return false
		}
		if page.TotalCount == nil {
			n.err = ConsistencyError{Message: fmt.Sprintf("collection %q has no totalCount", n.collection)}
			return false
		}
		count := *page.TotalCount
		if n.declared == nil {
			n.pages.api.tel.ReportDebug("expecting nodes", count)
			n.declared = &count
		} else if *n.declared != count {
			n.err = ConsistencyError{Message: fmt.Sprintf(
				"Memberful API suddenly declares different total count: %d (≠ %d)", count, *n.declared,
			)}
			return false
		}

		for _, edge := range page.Edges {
			n.buffer = append(n.buffer, edge.Node)
		}
	}
}

func (n *Nodes) verify() error {
	if n.declared == nil {
		return ConsistencyError{Message: "no page was returned"}
	}
	if n.strict && n.duplicates > 0 {
		return ConsistencyError{Message: fmt.Sprintf(
			"Memberful API returned %d duplicate nodes", n.duplicates,
		)}
	}
	if n.yielded != *n.declared {
		return ConsistencyError{Message: fmt.Sprintf(
			"Memberful API returned %d nodes instead of %d (%d duplicates dropped)",
			n.yielded, *n.declared, n.duplicates,
		)}
	}
	if n.duplicates > 0 {
		n.pages.api.tel.ReportWarning(
			report_nodes_duplicates,
			fmt.Sprintf("dropped %d duplicate nodes of %q", n.duplicates, n.collection),
		)
	}
	return nil
}

// Node returns the node Next moved to.
func (n *Nodes) Node() json.RawMessage {
	return n.node
}

// Decode unmarshals the current node into v.
func (n *Nodes) Decode(v any) error {
	return json.Unmarshal(n.node, v)
}

func (n *Nodes) Err() error {
	return n.err
}

// Duplicates returns how many nodes were dropped as duplicates so far.
func (n *Nodes) Duplicates() int {
	return n.duplicates
}

// Yielded returns how many unique nodes were returned so far.
func (n *Nodes) Yielded() int {
	return n.yielded
}

// Declared returns the totalCount from the first page, or -1 before any page.
func (n *Nodes) Declared() int {
	if n.declared == nil {
		return -1
	}
	return *n.declared
}

// CollectNodes drains nodes decoding every node into a T.
func CollectNodes[T any](ctx context.Context, nodes *Nodes) ([]T, error) {
	var out []T
	for nodes.Next(ctx) {
		var v T
		err := nodes.Decode(&v)
		if err != nil {
			return nil, fmt.Errorf("decode node: %w", err)
		}
		out = append(out, v)
	}
	if err := nodes.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
