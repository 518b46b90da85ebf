package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dialogkit/convmem/core"
	"github.com/dialogkit/convmem/history"
	"github.com/dialogkit/convmem/memory"
	mockstore "github.com/dialogkit/convmem/memory/store/mock"
)

func newTestEngine(t *testing.T) (*memory.Engine, *mockstore.Store) {
	t.Helper()
	store := mockstore.New()
	engine, err := memory.NewEngine(store)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine, store
}

func priceTurn(clientID string) core.ConversationTurn {
	return core.ConversationTurn{
		ClientID: clientID,
		UserText: "cuanto cuesta cambiar la pantalla del iphone 13",
		BotText:  "el cambio de pantalla cuesta $2,800 MXN",
		Intent:   "consulta_precio",
		Extracted: core.Extracted{
			Device:  "iphone 13",
			Service: "pantalla",
			Price:   "2800",
		},
		Timestamp: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestStoreTurn_PersistsChunks(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	if !engine.StoreTurn(ctx, priceTurn("6862262377")) {
		t.Fatal("StoreTurn returned false for valid turn")
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count == 0 {
		t.Error("no documents stored")
	}
}

func TestStoreTurn_RejectsEmptyTurn(t *testing.T) {
	engine, store := newTestEngine(t)

	if engine.StoreTurn(context.Background(), core.ConversationTurn{ClientID: "c1"}) {
		t.Error("StoreTurn accepted a turn with no text")
	}
	if count, _ := store.Count(context.Background()); count != 0 {
		t.Errorf("empty turn stored %d documents", count)
	}
}

func TestStoreTurn_NormalizesClientID(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	turn := priceTurn("+52 686 226 2377")
	engine.StoreTurn(ctx, turn)

	// The same client under a different identifier encoding finds the turn.
	resp := engine.Search(ctx, "precio pantalla iphone", "6862262377", core.SearchFilters{})
	if len(resp.Memories) == 0 {
		t.Error("normalized lookup found nothing for an alternate encoding")
	}
}

func TestStoreTurn_SkipsExactDuplicate(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	turn := priceTurn("6862262377")
	engine.StoreTurn(ctx, turn)
	countAfterFirst, _ := store.Count(ctx)

	// Identical content in the same session adds nothing new.
	engine.StoreTurn(ctx, turn)
	countAfterRepeat, _ := store.Count(ctx)

	if countAfterRepeat > countAfterFirst {
		t.Errorf("duplicate turn grew the store from %d to %d documents",
			countAfterFirst, countAfterRepeat)
	}
}

func TestStoreTurn_UpsertFailureDegradesToTrue(t *testing.T) {
	engine, store := newTestEngine(t)
	store.UpsertErr = errors.New("disk full")

	if !engine.StoreTurn(context.Background(), priceTurn("6862262377")) {
		t.Error("StoreTurn returned false when persistence failed; buffering still succeeded")
	}
}

func TestSearch_ReturnsFormattedResults(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	engine.StoreTurn(ctx, priceTurn("6862262377"))

	resp := engine.Search(ctx, "cuanto cuesta la pantalla", "6862262377", core.SearchFilters{})
	if len(resp.Memories) == 0 {
		t.Fatal("no memories returned")
	}
	if resp.Metadata.SearchStrategy == "error_fallback" {
		t.Fatal("healthy search reported error_fallback")
	}
	if resp.Metadata.BaseLimit <= 0 || resp.Metadata.MaxLimit < resp.Metadata.BaseLimit {
		t.Errorf("bad limits in metadata: %+v", resp.Metadata)
	}

	m := resp.Memories[0]
	if m.ID == "" || m.Text == "" {
		t.Errorf("memory incomplete: %+v", m)
	}
	if m.Stability <= 0 || m.Stability > 1 {
		t.Errorf("stability %f out of range", m.Stability)
	}
	if m.Metadata["client_id"] != "526862262377" {
		t.Errorf("metadata client_id = %q, want normalized id", m.Metadata["client_id"])
	}
}

func TestSearch_Deterministic(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	engine.StoreTurn(ctx, priceTurn("6862262377"))

	first := engine.Search(ctx, "precio pantalla iphone", "6862262377", core.SearchFilters{})
	second := engine.Search(ctx, "precio pantalla iphone", "6862262377", core.SearchFilters{})

	if !second.Metadata.Cached {
		t.Error("identical repeat query missed the stabilized cache")
	}
	if len(first.Memories) != len(second.Memories) {
		t.Fatalf("result counts differ: %d vs %d", len(first.Memories), len(second.Memories))
	}
	for i := range first.Memories {
		if first.Memories[i].ID != second.Memories[i].ID {
			t.Errorf("row %d differs: %s vs %s", i, first.Memories[i].ID, second.Memories[i].ID)
		}
	}
}

func TestSearch_StoreFailureReturnsErrorFallback(t *testing.T) {
	engine, store := newTestEngine(t)
	store.QueryErr = errors.New("backend down")

	resp := engine.Search(context.Background(), "precio pantalla", "", core.SearchFilters{})
	if resp == nil {
		t.Fatal("Search returned nil on failure")
	}
	if resp.Metadata.SearchStrategy != "error_fallback" {
		t.Errorf("strategy = %q, want error_fallback", resp.Metadata.SearchStrategy)
	}
	if len(resp.Memories) != 0 {
		t.Errorf("failure response carries %d memories", len(resp.Memories))
	}
}

func TestSearch_DateFilterPostApplies(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	old := priceTurn("6862262377")
	old.Timestamp = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.StoreTurn(ctx, old)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	resp := engine.Search(ctx, "precio pantalla iphone", "6862262377", core.SearchFilters{DateFrom: &from})
	if len(resp.Memories) != 0 {
		t.Errorf("date filter let %d stale memories through", len(resp.Memories))
	}
}

func TestSearchClientHistory_EndToEnd(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	engine.StoreTurn(ctx, priceTurn("6862262377"))
	second := priceTurn("6862262377")
	second.UserText = "y la bateria cuanto cuesta para el mismo iphone"
	second.Extracted.Service = "bateria"
	second.Extracted.Price = "1200"
	second.Timestamp = second.Timestamp.Add(5 * time.Minute)
	engine.StoreTurn(ctx, second)

	report, err := engine.SearchClientHistory(ctx, "+526862262377", history.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if report.ClientID != "526862262377" {
		t.Errorf("report client = %q", report.ClientID)
	}
	if len(report.Records) == 0 {
		t.Fatal("history found no records")
	}
	if report.Profile == nil {
		t.Fatal("history produced no profile")
	}
	if report.Profile.InteractionCount != len(report.Records) {
		t.Errorf("interaction count %d != records %d",
			report.Profile.InteractionCount, len(report.Records))
	}
}

func TestGetClientProfile(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	engine.StoreTurn(ctx, priceTurn("6862262377"))

	profile, err := engine.GetClientProfile(ctx, "6862262377")
	if err != nil {
		t.Fatal(err)
	}
	if profile.ClientID != "526862262377" {
		t.Errorf("profile client = %q", profile.ClientID)
	}
	if profile.InteractionCount == 0 {
		t.Error("profile sees no interactions")
	}
}

func TestGetClientMemory_RespectsLimit(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	base := priceTurn("6862262377")
	for i := 0; i < 4; i++ {
		turn := base
		turn.UserText = base.UserText + " variante distinta numero " + string(rune('a'+i)) + " con mas detalle"
		turn.Timestamp = base.Timestamp.Add(time.Duration(i) * time.Hour)
		engine.StoreTurn(ctx, turn)
	}

	resp := engine.GetClientMemory(ctx, "6862262377", 2)
	if len(resp.Memories) > 2 {
		t.Errorf("limit ignored: %d memories", len(resp.Memories))
	}
}
