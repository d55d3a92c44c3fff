package ckpt

import (
	"context"
	"time"

	"github.com/machinebox/graphql"

	"github.com/permaweb/ao-cu/cuerr"
	"github.com/permaweb/ao-cu/ordinate"
)

// HTTPGateway is the GraphQL gateway client for the content-addressed
// checkpoint network, built on github.com/machinebox/graphql -- the
// minimal GraphQL client the Go ecosystem reaches for when nothing in
// the retrieval pack carries one (the pack's only GraphQL code is
// server-side, in go-ethereum/graphql and cc-backend).
type HTTPGateway struct {
	client      *graphql.Client
	downloadURL string
	timeout     time.Duration
}

// NewHTTPGateway builds a gateway client against graphqlURL and
// downloadURL (a tx id is appended as a path segment to fetch raw
// payload bytes).
func NewHTTPGateway(graphqlURL, downloadURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		client:      graphql.NewClient(graphqlURL),
		downloadURL: trimTrailingSlash(downloadURL),
		timeout:     timeout,
	}
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

const checkpointQuery = `
query($processId: String!, $moduleId: String!, $owners: [String!]!) {
  transactions(
    tags: [
      { name: "Data-Protocol", values: ["ao"] }
      { name: "Type", values: ["Checkpoint"] }
      { name: "Process", values: [$processId] }
      { name: "Module", values: [$moduleId] }
    ]
    owners: $owners
    sort: HEIGHT_DESC
    first: 50
  ) {
    edges {
      node {
        id
        owner { address }
        tags { name value }
        block { height timestamp }
      }
    }
  }
}`

type gqlTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type gqlNode struct {
	ID    string `json:"id"`
	Owner struct {
		Address string `json:"address"`
	} `json:"owner"`
	Tags  []gqlTag `json:"tags"`
	Block struct {
		Height    int64 `json:"height"`
		Timestamp int64 `json:"timestamp"`
	} `json:"block"`
}

type checkpointQueryResponse struct {
	Transactions struct {
		Edges []struct {
			Node gqlNode `json:"node"`
		} `json:"edges"`
	} `json:"transactions"`
}

func tagValue(tags []gqlTag, name string) string {
	for _, t := range tags {
		if t.Name == name {
			return t.Value
		}
	}
	return ""
}

// QueryCheckpoints issues the checkpoint-discovery GraphQL query and
// decodes matching transactions into descriptors.
func (g *HTTPGateway) QueryCheckpoints(processID, moduleID string, trustedOwners []string) ([]CheckpointDescriptor, error) {
	req := graphql.NewRequest(checkpointQuery)
	req.Var("processId", processID)
	req.Var("moduleId", moduleID)
	req.Var("owners", trustedOwners)

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	var resp checkpointQueryResponse
	if err := g.client.Run(ctx, req, &resp); err != nil {
		return nil, cuerr.Wrap(cuerr.KindTransient, err, "querying gateway for %s", processID)
	}

	out := make([]CheckpointDescriptor, 0, len(resp.Transactions.Edges))
	for _, e := range resp.Transactions.Edges {
		n := e.Node
		out = append(out, CheckpointDescriptor{
			TxID:        n.ID,
			ProcessID:   tagValue(n.Tags, "Process"),
			ModuleID:    tagValue(n.Tags, "Module"),
			Ordinate:    ordinate.Ordinate(tagValue(n.Tags, "Ordinate")),
			Epoch:       parseInt64(tagValue(n.Tags, "Epoch")),
			Nonce:       parseInt64(tagValue(n.Tags, "Nonce")),
			HashTag:     tagValue(n.Tags, "SHA-256"),
			Owner:       n.Owner.Address,
			BlockHeight: n.Block.Height,
			Timestamp:   n.Block.Timestamp,
		})
	}
	return out, nil
}

// DownloadPayload fetches the raw checkpoint bytes for a transaction id
// over a plain HTTP GET; the GraphQL endpoint only indexes metadata,
// payload bytes live behind a separate content-addressed download path.
func (g *HTTPGateway) DownloadPayload(txID string) ([]byte, error) {
	return httpGetBytes(g.downloadURL+"/"+txID, g.timeout)
}

func parseInt64(s string) int64 {
	var n int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int64(c-'0')
	}
	return n
}
