package nodemarket

import (
	"github.com/YAtOff/lansync/internal/store"
)

// ExchangeWithDB persists nm's Market via the store's exchange_with_db
// operation. ForFileProvider and ForFileConsumer do not call it themselves;
// their callers (LoadOrNew, and the send/receive engine) do, after
// construction and after each update. The merged result replaces nm.Market in place so
// callers always see the union of what the store already knew and what nm
// just contributed.
func (nm *NodeMarket) ExchangeWithDB(st *store.Store, namespace string) error {
	merged, err := st.ExchangeWithDB(namespace, nm.NodeKey, nm.Market)
	if err != nil {
		return err
	}
	nm.Market = merged
	return nil
}

// LoadOrNew returns the persisted NodeMarket for (namespace, nodeKey) if the
// store has one, otherwise builds a fresh consumer NodeMarket over hashes
// and persists it — the "look up existing Market... if none, create" branch
// of spec.md 4.D's consumer construction.
func LoadOrNew(st *store.Store, namespace, deviceID, nodeKey string, hashes []string) (*NodeMarket, error) {
	h := dedupSorted(hashes)
	stored, err := st.LoadMarket(namespace, nodeKey)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return &NodeMarket{NodeKey: nodeKey, Hashes: h, Market: stored}, nil
	}
	nm := ForFileConsumer(deviceID, nodeKey, hashes)
	if err := nm.ExchangeWithDB(st, namespace); err != nil {
		return nil, err
	}
	return nm, nil
}
