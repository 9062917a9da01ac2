package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Corphon/HotspotDeck/internal/bridge"
	"github.com/Corphon/HotspotDeck/internal/editor"
	apperrors "github.com/Corphon/HotspotDeck/internal/errors"
	"github.com/Corphon/HotspotDeck/internal/models"
	"github.com/Corphon/HotspotDeck/internal/navigation"
	"github.com/Corphon/HotspotDeck/internal/services"
	"github.com/Corphon/HotspotDeck/internal/storage"
)

// ErrIntegrityIssues validate --fail 发现问题时返回
var ErrIntegrityIssues = errors.New("integrity issues found")

func newInitCmd(app *App) *cobra.Command {
	var (
		projectID string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty project document",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			repo, err := openRepository(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer repo.Close()

			if _, err := repo.Load(ctx); err == nil && !force {
				return writeErr(cmd, fmt.Errorf("project already exists in %s (use --force)", repo.Name()))
			} else if err != nil && !apperrors.IsNotFoundError(err) {
				return writeErr(cmd, err)
			}

			doc := models.NewDocument(projectID)
			doc.Sequences = append(doc.Sequences, models.Sequence{ID: "seq-1", Title: "Main", Contents: []string{}})
			raw, err := json.Marshal(doc)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := repo.Save(ctx, raw); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": doc,
				"meta": map[string]any{"repository": repo.Name()},
			})
		},
	}

	cmd.Flags().StringVar(&projectID, "project-id", "project", "Project id")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing document")
	return cmd
}

func newValidateCmd(app *App) *cobra.Command {
	var fail bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Report dangling sequence entries and hotspot targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			doc, repo, err := loadDocument(ctx, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer repo.Close()

			issues := doc.CheckIntegrity()
			if issues == nil {
				issues = []models.IntegrityIssue{}
			}
			if err := writeOut(cmd, app, map[string]any{
				"data": issues,
				"meta": map[string]any{
					"issues":     len(issues),
					"ok":         len(issues) == 0,
					"repository": repo.Name(),
				},
				"_hints": []string{"deckctl repair --write"},
			}); err != nil {
				return err
			}
			if fail && len(issues) > 0 {
				return ErrIntegrityIssues
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fail, "fail", false, "Exit with non-zero status if issues are found")
	return cmd
}

func newRepairCmd(app *App) *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Remove sequence entries that reference missing contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			doc, repo, err := loadDocument(ctx, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer repo.Close()

			repaired, removed := editor.RepairDanglingReferences(doc)
			if removed == nil {
				removed = []models.IntegrityIssue{}
			}
			written := false
			if write && len(removed) > 0 {
				raw, err := json.Marshal(repaired)
				if err != nil {
					return writeErr(cmd, err)
				}
				if err := repo.Save(ctx, raw); err != nil {
					return writeErr(cmd, err)
				}
				written = true
			}
			return writeOut(cmd, app, map[string]any{
				"data": removed,
				"meta": map[string]any{
					"removed": len(removed),
					"written": written,
				},
			})
		},
	}

	cmd.Flags().BoolVar(&write, "write", false, "Save the repaired document")
	return cmd
}

func newExportCmd(app *App) *cobra.Command {
	var (
		format string
		save   bool
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the document as json, yaml or markdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			f, err := services.ParseExportFormat(format)
			if err != nil {
				return writeErr(cmd, err)
			}
			doc, repo, err := loadDocument(ctx, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer repo.Close()

			if outDir == "" {
				outDir = app.cfg.ExportDir
			}
			fs, err := storage.NewFileStorage(outDir)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer fs.Close()

			result, err := services.NewExportService(fs, app.logger).Export(ctx, doc, f, save)
			if err != nil {
				return writeErr(cmd, err)
			}
			if save {
				fmt.Fprintln(cmd.OutOrStdout(), result.FilePath)
				return nil
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), result.Content)
			return err
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Export format (json|yaml|markdown)")
	cmd.Flags().BoolVar(&save, "save", false, "Write to the export directory instead of stdout")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Export directory (default EXPORT_DIR)")
	return cmd
}

func newStatsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count sequences, contents and hotspots",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			doc, repo, err := loadDocument(ctx, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer repo.Close()

			return writeOut(cmd, app, map[string]any{
				"data": doc.Stats(),
				"meta": map[string]any{"projectId": doc.ProjectID},
			})
		},
	}
}

// PlayStep play 命令每一步的结果
type PlayStep struct {
	Step      string `json:"step"`
	ContentID string `json:"contentId"`
	IsPlaying bool   `json:"isPlaying"`
	CanNext   bool   `json:"canNext"`
	CanPrev   bool   `json:"canPrev"`
	Changed   bool   `json:"changed"`
}

func newPlayCmd(app *App) *cobra.Command {
	var sequenceID string

	cmd := &cobra.Command{
		Use:   "play [step...]",
		Short: "Walk a sequence in player mode",
		Long: strings.TrimSpace(`
Steps:
  next | prev          navigate within the sequence
  key:<Key>            arrow key (ArrowRight, ArrowDown, ArrowLeft, ArrowUp)
  hotspot:<id>         activate a hotspot on the current content
  msg:<json>           message posted by an embedded slide, e.g. msg:{"type":"NAVIGATE","targetId":"s2"}
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			doc, repo, err := loadDocument(ctx, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer repo.Close()

			if sequenceID == "" && len(doc.Sequences) > 0 {
				sequenceID = doc.Sequences[0].ID
			}
			if _, _, ok := doc.Sequence(sequenceID); !ok {
				return writeErr(cmd, fmt.Errorf("sequence not found: %s", sequenceID))
			}

			trace, err := Play(doc, sequenceID, args)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": trace,
				"meta": map[string]any{"sequenceId": sequenceID, "steps": len(args)},
			})
		},
	}

	cmd.Flags().StringVar(&sequenceID, "sequence", "", "Sequence to play (default: first)")
	return cmd
}

// Play 以播放模式依次执行步骤，返回每一步后的状态
func Play(doc *models.Document, sequenceID string, steps []string) ([]PlayStep, error) {
	nav := navigation.New(navigation.ModePlayer)
	st := nav.InitialState(doc, sequenceID)
	listener := bridge.Attach(bridge.ReceiverFunc(func(targetID string) {
		st = nav.RouteTo(doc, st, targetID)
	}))
	defer listener.Close()

	snapshot := func(step string, before navigation.State) PlayStep {
		return PlayStep{
			Step:      step,
			ContentID: st.ContentID,
			IsPlaying: st.IsPlaying,
			CanNext:   nav.CanNext(doc, st),
			CanPrev:   nav.CanPrev(doc, st),
			Changed:   st != before,
		}
	}

	trace := []PlayStep{snapshot("start", st)}
	for _, step := range steps {
		before := st
		kind, arg, _ := strings.Cut(step, ":")
		switch kind {
		case "next":
			st = nav.Next(doc, st)
		case "prev":
			st = nav.Prev(doc, st)
		case "key":
			st = nav.HandleKey(doc, st, arg, navigation.FocusNone)
		case "hotspot":
			c, ok := doc.Content(st.ContentID)
			if !ok {
				break
			}
			if h, _, found := c.FindHotspot(arg); found {
				st = nav.ActivateHotspot(doc, st, h)
			}
		case "msg":
			listener.Handle([]byte(arg))
		default:
			return trace, fmt.Errorf("unknown step: %s", step)
		}
		trace = append(trace, snapshot(step, before))
	}
	return trace, nil
}
