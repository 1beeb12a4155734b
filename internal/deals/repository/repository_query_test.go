package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestFindOpenDealQueryContactFilter(t *testing.T) {
	accountID := uuid.New()
	contactID := uuid.New()

	query, args := buildFindOpenDealsQuery(accountID, &contactID, nil)
	query = strings.ToLower(query)

	requiredFragments := []string{
		"where account_id = $1 and is_closed = false",
		"and primary_contact_id = $2",
		"order by updated_at desc, deal_value_cents desc nulls last, id asc limit 20",
	}
	for _, fragment := range requiredFragments {
		if !strings.Contains(query, fragment) {
			t.Fatalf("expected query fragment %q to be present in %s", fragment, query)
		}
	}
	if strings.Contains(query, "created_at >=") {
		t.Fatal("contact match must not be bounded by the dedupe window")
	}
	if len(args) != 2 || args[1] != contactID {
		t.Fatalf("unexpected args %#v", args)
	}
}

func TestFindOpenDealQueryWindowFilter(t *testing.T) {
	since := time.Now().Add(-30 * 24 * time.Hour)

	query, args := buildFindOpenDealsQuery(uuid.New(), nil, &since)
	query = strings.ToLower(query)

	if !strings.Contains(query, "and created_at >= $2") {
		t.Fatalf("expected window filter, got %s", query)
	}
	if strings.Contains(query, "primary_contact_id =") {
		t.Fatal("account match must not filter on contact")
	}
	if len(args) != 2 || args[1] != since {
		t.Fatalf("unexpected args %#v", args)
	}
}

func TestUpdateDealQueryIsCompareAndSwap(t *testing.T) {
	query := strings.ToLower(updateDealQuery)

	for _, fragment := range []string{"version = version + 1", "where id = $1 and version = $15", "updated_at = $14"} {
		if !strings.Contains(query, fragment) {
			t.Fatalf("expected CAS fragment %q to be present", fragment)
		}
	}
	for _, immutable := range []string{"account_id =", "created_at =", "source ="} {
		if strings.Contains(query, immutable) {
			t.Fatalf("update must not touch %q", immutable)
		}
	}
}

func TestRelayClaimQuerySkipsLockedRows(t *testing.T) {
	query := strings.ToLower(relayClaimQuery)

	for _, fragment := range []string{"published_at is null", "for update skip locked", "order by occurred_at asc"} {
		if !strings.Contains(query, fragment) {
			t.Fatalf("expected relay fragment %q to be present", fragment)
		}
	}
}

func TestLinkQuoteDealNeverClears(t *testing.T) {
	if strings.Contains(strings.ToLower(linkQuoteDealQuery), "null") {
		t.Fatal("linking must never clear deal_id")
	}
}

func TestMarshalMetadataDefaultsToEmptyObject(t *testing.T) {
	b, err := marshalMetadata(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != "{}" {
		t.Fatalf("expected empty object, got %s", b)
	}
}
