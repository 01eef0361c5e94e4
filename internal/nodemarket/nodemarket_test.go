package nodemarket

import "testing"

func TestNodeMarket_ProviderHasAllConsumerHasNone(t *testing.T) {
	hashes := []string{"c", "a", "b"}
	provider := ForFileProvider("provider", "node1", hashes)
	consumer := ForFileConsumer("consumer", "node1", hashes)

	if !provider.Complete("provider") {
		t.Fatal("provider should already be complete")
	}
	if consumer.Complete("consumer") {
		t.Fatal("fresh consumer should not be complete")
	}

	// Hashes must come out sorted and deduplicated.
	want := []string{"a", "b", "c"}
	for i, h := range want {
		if provider.Hashes[i] != h {
			t.Fatalf("expected sorted hashes %v, got %v", want, provider.Hashes)
		}
	}
}

func TestNodeMarket_FindProvidersAndConsumers(t *testing.T) {
	hashes := []string{"a", "b", "c"}
	nm := ForFileConsumer("me", "node1", hashes)
	nm.Market.Set("peer1", nm.Market.Get("peer1")) // ensure peer1 known

	peer1Set := nm.Market.Get("peer1")
	peer1Set.Mark(0) // peer1 has "a"
	nm.Market.Set("peer1", peer1Set)

	providers := nm.FindProviders("a")
	if len(providers) != 1 || providers[0] != "peer1" {
		t.Fatalf("expected peer1 as provider of 'a', got %v", providers)
	}

	consumers := nm.FindConsumers("a")
	found := false
	for _, c := range consumers {
		if c == "me" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'me' to be a consumer of 'a' it doesn't have, got %v", consumers)
	}
}

func TestNodeMarket_ProvideChunkAndExchange(t *testing.T) {
	hashes := []string{"a", "b"}
	mine := ForFileConsumer("me", "node1", hashes)
	mine.ProvideChunk("me", "a")

	if !mine.Market.Get("me").Has(0) {
		t.Fatal("ProvideChunk should mark the chunk as present")
	}

	theirs := ForFileProvider("peer", "node1", hashes)
	mine.Exchange(theirs)

	if !mine.FindProvidersContains("b", "peer") {
		t.Fatal("exchange should bring in peer's inventory")
	}
}

// FindProvidersContains is a small test helper, not part of the package API.
func (nm *NodeMarket) FindProvidersContains(hash, deviceID string) bool {
	for _, p := range nm.FindProviders(hash) {
		if p == deviceID {
			return true
		}
	}
	return false
}
