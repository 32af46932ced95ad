package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/chatmigrate/owui-import/internal/export"
	"github.com/chatmigrate/owui-import/internal/webui"
)

// fakeService records delivery calls and fails on demand: whole calls by
// sequence number, individual conversations by source id.
type fakeService struct {
	records   []webui.ChatRecord
	listErr   error
	failCalls map[int]bool    // 1-based call sequence numbers that fail
	failIDs   map[string]bool // source ids that fail when delivered alone
	calls     [][]string      // conversation ids per ImportChats call
}

func (f *fakeService) ImportChats(_ context.Context, forms []webui.ChatForm) ([]webui.ImportedChat, error) {
	ids := make([]string, len(forms))
	for i, form := range forms {
		ids[i] = form.Meta.ConversationID
	}
	f.calls = append(f.calls, ids)

	if f.failCalls[len(f.calls)] {
		return nil, errors.New("bulk delivery failed")
	}
	if len(forms) == 1 && f.failIDs[ids[0]] {
		return nil, errors.New("individual delivery failed")
	}

	imported := make([]webui.ImportedChat, len(forms))
	for i, form := range forms {
		imported[i] = webui.ImportedChat{ID: "w-" + ids[i], Title: form.Chat.Title}
	}
	return imported, nil
}

func (f *fakeService) ListChats(context.Context) ([]webui.ChatRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

func textConvo(id string, texts ...string) export.Conversation {
	mapping := make(map[string]export.Node)
	parent := ""
	last := ""
	for i, text := range texts {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		nodeID := fmt.Sprintf("%s-n%d", id, i)
		mapping[nodeID] = export.Node{
			ID:     nodeID,
			Parent: parent,
			Message: &export.Message{
				Author:  export.Author{Role: role},
				Content: json.RawMessage(fmt.Sprintf(`{"content_type":"text","parts":[%q]}`, text)),
			},
		}
		parent = nodeID
		last = nodeID
	}
	return export.Conversation{
		ID:          id,
		Title:       "Conversation " + id,
		CreateTime:  1700000000.0,
		Mapping:     mapping,
		CurrentNode: last,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testState(t *testing.T) *State {
	t.Helper()
	s, err := LoadState(filepath.Join(t.TempDir(), "state.txt"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func convos(n int) []export.Conversation {
	out := make([]export.Conversation, n)
	for i := range out {
		out[i] = textConvo(fmt.Sprintf("c%d", i+1), "question", "answer")
	}
	return out
}

func TestRun_DeliversInChunks(t *testing.T) {
	svc := &fakeService{}
	state := testState(t)
	r := NewRunner(Config{All: true, ChunkSize: 2, AllowDuplicates: true}, svc, state, testLogger())

	result, err := r.Run(context.Background(), convos(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Imported != 5 || result.Failed != 0 {
		t.Errorf("imported=%d failed=%d, want 5/0", result.Imported, result.Failed)
	}

	sizes := make([]int, len(svc.calls))
	for i, c := range svc.calls {
		sizes[i] = len(c)
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("call sizes = %v, want [2 2 1]", sizes)
	}

	data, err := os.ReadFile(state.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "c1\nc2\nc3\nc4\nc5\n" {
		t.Errorf("state file = %q", string(data))
	}
}

func TestRun_FallbackRetriesIndividually(t *testing.T) {
	// Chunk 2's bulk call fails; its two conversations are retried one at a
	// time, with one of them failing on its own. Chunks 1 and 3 go in bulk.
	svc := &fakeService{
		failCalls: map[int]bool{2: true},
		failIDs:   map[string]bool{"c4": true},
	}
	state := testState(t)
	r := NewRunner(Config{All: true, ChunkSize: 2, AllowDuplicates: true, FallbackOnError: true}, svc, state, testLogger())

	result, err := r.Run(context.Background(), convos(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Imported != 4 {
		t.Errorf("imported = %d, want 4", result.Imported)
	}
	if result.Failed != 1 {
		t.Errorf("failed = %d, want 1", result.Failed)
	}

	// bulk c1c2, bulk c3c4 (fails), c3 alone, c4 alone (fails), bulk c5
	if len(svc.calls) != 5 {
		t.Fatalf("expected 5 delivery calls, got %d: %v", len(svc.calls), svc.calls)
	}
	if len(svc.calls[2]) != 1 || svc.calls[2][0] != "c3" {
		t.Errorf("call 3 = %v, want [c3]", svc.calls[2])
	}
	if len(svc.calls[3]) != 1 || svc.calls[3][0] != "c4" {
		t.Errorf("call 4 = %v, want [c4]", svc.calls[3])
	}

	if state.Has("c4") {
		t.Error("failed conversation must not be recorded in state")
	}
	for _, id := range []string{"c1", "c2", "c3", "c5"} {
		if !state.Has(id) {
			t.Errorf("state missing %q", id)
		}
	}
}

func TestRun_AbortsWithoutFallback(t *testing.T) {
	svc := &fakeService{failCalls: map[int]bool{2: true}}
	state := testState(t)
	r := NewRunner(Config{All: true, ChunkSize: 2, AllowDuplicates: true}, svc, state, testLogger())

	result, err := r.Run(context.Background(), convos(5))
	if err == nil {
		t.Fatal("expected error when fallback is disabled")
	}
	if result.Imported != 2 {
		t.Errorf("imported = %d, want 2 (only the first chunk)", result.Imported)
	}
	if len(svc.calls) != 2 {
		t.Errorf("expected delivery to stop after the failed chunk, got %d calls", len(svc.calls))
	}
	if state.Has("c3") || state.Has("c4") {
		t.Error("unconfirmed conversations must not be recorded in state")
	}
}

func TestRun_SkipsDuplicates(t *testing.T) {
	svc := &fakeService{
		records: []webui.ChatRecord{
			{ID: "w2", Meta: webui.ChatMeta{ImportSource: webui.ImportSource, ConversationID: "c2"}},
		},
	}
	state := testState(t)
	if err := state.Append("c1"); err != nil {
		t.Fatal(err)
	}
	r := NewRunner(Config{All: true}, svc, state, testLogger())

	result, err := r.Run(context.Background(), convos(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SkippedDuplicates != 2 {
		t.Errorf("skipped = %d, want 2 (one local, one remote)", result.SkippedDuplicates)
	}
	if result.Imported != 1 {
		t.Errorf("imported = %d, want 1", result.Imported)
	}
	if len(svc.calls) != 1 || svc.calls[0][0] != "c3" {
		t.Errorf("delivery calls = %v, want just c3", svc.calls)
	}
}

func TestRun_SecondRunImportsNothing(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.txt")

	for run := 0; run < 2; run++ {
		svc := &fakeService{}
		state, err := LoadState(statePath)
		if err != nil {
			t.Fatal(err)
		}
		r := NewRunner(Config{All: true}, svc, state, testLogger())
		result, err := r.Run(context.Background(), convos(3))
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if run == 0 && result.Imported != 3 {
			t.Errorf("first run imported %d, want 3", result.Imported)
		}
		if run == 1 {
			if result.Imported != 0 {
				t.Errorf("second run imported %d, want 0", result.Imported)
			}
			if result.SkippedDuplicates != 3 {
				t.Errorf("second run skipped %d, want 3", result.SkippedDuplicates)
			}
		}
	}
}

func TestRun_CountShortfall(t *testing.T) {
	svc := &fakeService{}
	r := NewRunner(Config{Count: 5, AllowDuplicates: true}, svc, testState(t), testLogger())

	_, err := r.Run(context.Background(), convos(2))
	if err == nil {
		t.Fatal("expected error when fewer convertible than requested")
	}
	if len(svc.calls) != 0 {
		t.Error("nothing should be delivered on a shortfall")
	}
}

func TestRun_CountLimitsSelection(t *testing.T) {
	svc := &fakeService{}
	r := NewRunner(Config{Count: 2, AllowDuplicates: true}, svc, testState(t), testLogger())

	result, err := r.Run(context.Background(), convos(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Selected != 2 || result.Imported != 2 {
		t.Errorf("selected=%d imported=%d, want 2/2", result.Selected, result.Imported)
	}
	// No shuffle configured: original order.
	if svc.calls[0][0] != "c1" || svc.calls[0][1] != "c2" {
		t.Errorf("delivered %v, want [c1 c2]", svc.calls[0])
	}
}

func TestRun_NotConvertibleCounted(t *testing.T) {
	all := convos(2)
	all = append(all, export.Conversation{ID: "broken"}) // no mapping
	svc := &fakeService{}
	r := NewRunner(Config{All: true, AllowDuplicates: true}, svc, testState(t), testLogger())

	result, err := r.Run(context.Background(), all)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NotConvertible != 1 {
		t.Errorf("not convertible = %d, want 1", result.NotConvertible)
	}
	if result.Imported != 2 {
		t.Errorf("imported = %d, want 2", result.Imported)
	}
}

func TestRun_SeededShuffleIsDeterministic(t *testing.T) {
	order := func() []string {
		svc := &fakeService{}
		r := NewRunner(Config{
			All: true, Shuffle: true, Seed: 42, SeedSet: true, AllowDuplicates: true,
		}, svc, testState(t), testLogger())
		if _, err := r.Run(context.Background(), convos(6)); err != nil {
			t.Fatal(err)
		}
		return svc.calls[0]
	}

	first := order()
	second := order()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("seeded shuffles differ: %v vs %v", first, second)
		}
	}
}

func TestRun_DryRunDeliversNothing(t *testing.T) {
	svc := &fakeService{}
	r := NewRunner(Config{All: true, AllowDuplicates: true, DryRun: true}, svc, testState(t), testLogger())

	result, err := r.Run(context.Background(), convos(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.calls) != 0 {
		t.Errorf("dry run made %d delivery calls", len(svc.calls))
	}
	if result.Selected != 3 || result.Imported != 0 {
		t.Errorf("selected=%d imported=%d, want 3/0", result.Selected, result.Imported)
	}
}

func TestRun_WritesPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.json")
	svc := &fakeService{}
	r := NewRunner(Config{All: true, AllowDuplicates: true, DryRun: true, OutputPath: path}, svc, testState(t), testLogger())

	if _, err := r.Run(context.Background(), convos(2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("payload not written: %v", err)
	}
	var payload webui.ImportPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if len(payload.Chats) != 2 {
		t.Errorf("payload has %d chats, want 2", len(payload.Chats))
	}
	if payload.Chats[0].Meta.ImportSource != webui.ImportSource {
		t.Errorf("meta.import_source = %q", payload.Chats[0].Meta.ImportSource)
	}
}

func TestRun_RemoteQueryFailureAborts(t *testing.T) {
	svc := &fakeService{listErr: errors.New("listing unavailable")}
	r := NewRunner(Config{All: true}, svc, testState(t), testLogger())

	if _, err := r.Run(context.Background(), convos(2)); err == nil {
		t.Fatal("expected error when the remote dedup query fails")
	}
	if len(svc.calls) != 0 {
		t.Error("nothing should be delivered when dedup cannot be established")
	}
}
