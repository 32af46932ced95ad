// Package importer drives end-to-end delivery of converted conversations:
// candidate selection, duplicate skipping, chunked delivery with per-item
// fallback, and resumable persisted state.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/chatmigrate/owui-import/internal/convert"
	"github.com/chatmigrate/owui-import/internal/export"
	"github.com/chatmigrate/owui-import/internal/webui"
)

// ChatService is the slice of the Open WebUI API the runner needs.
type ChatService interface {
	ImportChats(ctx context.Context, forms []webui.ChatForm) ([]webui.ImportedChat, error)
	ListChats(ctx context.Context) ([]webui.ChatRecord, error)
}

// Config holds the import run configuration.
type Config struct {
	Count           int  // target number of conversations; ignored when All is set
	All             bool // import every convertible conversation
	Shuffle         bool // shuffled vs original candidate order
	Seed            int64
	SeedSet         bool
	ChunkSize       int // 0 = deliver everything in one chunk
	FallbackOnError bool
	AllowDuplicates bool // skip both local and remote dedup
	DryRun          bool
	OutputPath      string // optional: write the full import payload JSON
	Convert         convert.Options
}

// Selection is one convertible conversation ready for delivery.
type Selection struct {
	Form  webui.ChatForm
	Stats convert.Stats
}

// Result aggregates the outcome of a run.
type Result struct {
	Selected          int
	Imported          int
	Failed            int
	SkippedDuplicates int
	NotConvertible    int
}

// Runner orchestrates selection and delivery.
type Runner struct {
	cfg    Config
	client ChatService
	state  *State
	logger *slog.Logger
	runID  uuid.UUID
}

func NewRunner(cfg Config, client ChatService, state *State, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		client: client,
		state:  state,
		logger: logger,
		runID:  uuid.New(),
	}
}

// Run selects, converts, and delivers conversations. The returned Result is
// valid even when err is non-nil, reflecting what was confirmed before the
// failure.
func (r *Runner) Run(ctx context.Context, convos []export.Conversation) (*Result, error) {
	result := &Result{}
	logger := r.logger.With("run_id", r.runID.String())

	seen, err := r.dedupSet(ctx, logger)
	if err != nil {
		return result, err
	}

	selected := r.selectConversations(convos, seen, result)
	result.Selected = len(selected)

	if !r.cfg.All && len(selected) < r.cfg.Count {
		return result, fmt.Errorf("only found %d convertible conversations (requested %d)", len(selected), r.cfg.Count)
	}

	logger.Info("selection complete",
		"selected", len(selected),
		"skipped_duplicates", result.SkippedDuplicates,
		"not_convertible", result.NotConvertible,
	)
	printSelectionSummary(selected)

	if r.cfg.OutputPath != "" {
		if err := writePayload(r.cfg.OutputPath, selected); err != nil {
			return result, err
		}
		fmt.Printf("Wrote payload: %s\n", r.cfg.OutputPath)
	}

	if r.cfg.DryRun {
		fmt.Println("Dry run only. No import API call made.")
		return result, nil
	}

	if err := r.deliver(ctx, logger, selected, result); err != nil {
		return result, err
	}

	printRunSummary(result, r.cfg, r.state)
	return result, nil
}

// dedupSet builds the union of locally persisted and remotely recorded source
// ids. With AllowDuplicates both sources are skipped, including the remote
// query and the authentication it would require.
func (r *Runner) dedupSet(ctx context.Context, logger *slog.Logger) (map[string]bool, error) {
	if r.cfg.AllowDuplicates {
		return map[string]bool{}, nil
	}

	records, err := r.client.ListChats(ctx)
	if err != nil {
		return nil, fmt.Errorf("query existing chats: %w", err)
	}
	remote := RemoteImportedIDs(records)

	logger.Info("dedup sources loaded",
		"state_ids", r.state.Len(),
		"remote_ids", len(remote),
	)
	return union(r.state.seen, remote), nil
}

// selectConversations iterates candidates in shuffled or original order,
// skipping duplicates and unconvertible conversations, until the target count
// is reached or candidates run out.
func (r *Runner) selectConversations(convos []export.Conversation, seen map[string]bool, result *Result) []Selection {
	order := make([]int, len(convos))
	for i := range order {
		order[i] = i
	}
	if r.cfg.Shuffle {
		seed := r.cfg.Seed
		if !r.cfg.SeedSet {
			seed = time.Now().UnixNano()
		}
		rand.New(rand.NewSource(seed)).Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	now := time.Now().Unix()
	var selected []Selection

	for _, idx := range order {
		conv := convos[idx]

		if conv.ID != "" && seen[conv.ID] {
			result.SkippedDuplicates++
			continue
		}

		chat, stats := convert.Convert(conv, r.cfg.Convert)
		if chat == nil {
			result.NotConvertible++
			continue
		}

		createdAt := convert.EpochSeconds(conv.CreateTime, now)
		updatedAt := convert.EpochSeconds(conv.UpdateTime, createdAt)

		selected = append(selected, Selection{
			Form: webui.ChatForm{
				Chat: chat,
				Meta: webui.ChatMeta{
					ImportSource:   webui.ImportSource,
					ConversationID: conv.ID,
					OriginalTitle:  conv.Title,
				},
				CreatedAt: createdAt,
				UpdatedAt: updatedAt,
			},
			Stats: stats,
		})

		if !r.cfg.All && len(selected) >= r.cfg.Count {
			break
		}
	}

	return selected
}

// deliver sends the selection chunk by chunk. A failed bulk call aborts the
// run unless fallback is enabled, in which case the chunk's conversations are
// retried one at a time. Confirmed ids are appended to state immediately.
func (r *Runner) deliver(ctx context.Context, logger *slog.Logger, selected []Selection, result *Result) error {
	chunks := chunkSelections(selected, r.cfg.ChunkSize)

	for i, chunk := range chunks {
		forms := make([]webui.ChatForm, len(chunk))
		ids := make([]string, len(chunk))
		for j, sel := range chunk {
			forms[j] = sel.Form
			ids[j] = sel.Stats.SourceID
		}

		imported, err := r.client.ImportChats(ctx, forms)
		if err == nil {
			r.record(logger, ids...)
			result.Imported += len(chunk)
			logger.Info("chunk delivered", "chunk", i+1, "chunks", len(chunks), "size", len(chunk))
			printImported(imported)
			continue
		}

		if !r.cfg.FallbackOnError {
			return fmt.Errorf("import chunk %d/%d: %w", i+1, len(chunks), err)
		}

		logger.Warn("chunk delivery failed, retrying individually",
			"chunk", i+1,
			"size", len(chunk),
			"error", err,
		)

		for _, sel := range chunk {
			imported, err := r.client.ImportChats(ctx, []webui.ChatForm{sel.Form})
			if err != nil {
				result.Failed++
				logger.Error("import failed",
					"conversation_id", sel.Stats.SourceID,
					"title", sel.Stats.SourceTitle,
					"error", err,
				)
				continue
			}
			r.record(logger, sel.Stats.SourceID)
			result.Imported++
			printImported(imported)
		}
	}

	return nil
}

// record appends confirmed ids to the state file. A write failure here only
// weakens future dedup, so it is logged rather than aborting the run.
func (r *Runner) record(logger *slog.Logger, ids ...string) {
	if err := r.state.Append(ids...); err != nil {
		logger.Error("failed to record imported ids", "error", err, "state", r.state.Path())
	}
}

func writePayload(path string, selected []Selection) error {
	forms := make([]webui.ChatForm, len(selected))
	for i, sel := range selected {
		forms[i] = sel.Form
	}
	data, err := json.MarshalIndent(webui.ImportPayload{Chats: forms}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

func printSelectionSummary(selected []Selection) {
	fmt.Println("Selection summary:")
	for i, sel := range selected {
		fmt.Printf("  %d. id=%s | title=%q | nodes=%d | converted_messages=%d\n",
			i+1, sel.Stats.SourceID, sel.Stats.SourceTitle, sel.Stats.SourceNodes, sel.Stats.ConvertedMessages)
	}
}

func printImported(imported []webui.ImportedChat) {
	for _, chat := range imported {
		fmt.Printf("  imported openwebui_id=%s | title=%q | updated_at=%d\n", chat.ID, chat.Title, chat.UpdatedAt)
	}
}

func printRunSummary(result *Result, cfg Config, state *State) {
	fmt.Printf("\n=== Import Summary ===\n")
	fmt.Printf("Selected: %d\n", result.Selected)
	fmt.Printf("Imported: %d\n", result.Imported)
	fmt.Printf("Failed: %d\n", result.Failed)
	fmt.Printf("Skipped duplicates: %d\n", result.SkippedDuplicates)
	fmt.Printf("Not convertible: %d\n", result.NotConvertible)
	fmt.Printf("State file: %s\n", state.Path())
	if cfg.AllowDuplicates {
		fmt.Printf("Mode: duplicates allowed (no dedup)\n")
	}
}
