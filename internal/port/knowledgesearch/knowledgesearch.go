// Package knowledgesearch defines the free-text knowledge retrieval port.
package knowledgesearch

import (
	"context"

	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/knowledge"
)

// Searcher returns ranked knowledge fragments (policies, product sheets) for
// a free-text query, best match first.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]knowledge.Fragment, error)
}
