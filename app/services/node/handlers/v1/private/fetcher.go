package private

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/medledger/ledger/foundation/ledger/block"
	"github.com/medledger/ledger/foundation/ledger/chain"
)

// NewFetcher returns the peer accessor used during reconciliation: it pulls
// a registered peer's full chain document over HTTP and hands back the
// block sequence. A nil client gets a default with a request timeout so a
// slow peer can't wedge the resolve call.
func NewFetcher(client *http.Client) chain.Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return func(host string) ([]block.Block, error) {
		url := fmt.Sprintf("http://%s/v1/chain", host)

		resp, err := client.Get(url)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("peer %s returned status %d", host, resp.StatusCode)
		}

		var doc chain.Document
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode chain from peer %s: %w", host, err)
		}

		return doc.Chain, nil
	}
}
