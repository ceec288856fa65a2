package commands

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/spf13/cobra"

	"github.com/blitz-labs/tankrank/internal/cli/output"
	"github.com/blitz-labs/tankrank/internal/syncjob"
)

// NewSyncCommand creates the sync command group.
func NewSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull clan rosters and the vehicle catalog from the remote API",
		Long: `Run sync jobs against the configured remote API. Jobs need
sync.application_id and, for rosters, sync.clans in the config file or
the matching TANKRANK_SYNC__* environment variables.`,
	}

	roster := &cobra.Command{
		Use:   "roster",
		Short: "Replace the cached clan rosters for every configured region",
		Args:  cobra.NoArgs,
		RunE:  runSyncRoster,
	}

	catalog := &cobra.Command{
		Use:   "catalog",
		Short: "Add missing vehicles to the catalog from one region",
		Args:  cobra.NoArgs,
		RunE:  runSyncCatalog,
	}
	catalog.Flags().String("region", "eu", "region to pull the vehicle list from")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the persisted outcome of past sync runs",
		Args:  cobra.NoArgs,
		RunE:  runSyncStatus,
	}

	cmd.AddCommand(roster)
	cmd.AddCommand(catalog)
	cmd.AddCommand(status)

	return cmd
}

func newSyncRunner(cc *CommandContext) (*syncjob.Runner, error) {
	sc := cc.Cfg.Sync
	if sc.ApplicationID == "" {
		return nil, errors.New("sync.application_id is not configured")
	}
	client, err := syncjob.NewClient(syncjob.ClientOptions{
		AppID:       sc.ApplicationID,
		BaseURLs:    sc.BaseURLs,
		HTTPClient:  &http.Client{Timeout: sc.Timeout},
		MaxAttempts: sc.MaxAttempts,
		Logger:      cc.Logger,
	})
	if err != nil {
		return nil, err
	}
	return syncjob.NewRunner(cc.Store, client, syncjob.RunnerOptions{
		Clans:    sc.Clans,
		Resolver: cc.Resolver,
		Logger:   cc.Logger,
	}), nil
}

func runSyncRoster(cmd *cobra.Command, _ []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	runner, err := newSyncRunner(cc)
	if err != nil {
		return err
	}

	r := cc.Renderer
	var spin *output.Spinner
	if r.EffectiveMode() == output.ModeText {
		spin = r.NewSpinner("Syncing rosters...")
		spin.Start()
	}

	rep, err := runner.RosterSync(cmd.Context())
	if err != nil {
		if spin != nil {
			spin.Fail("Roster sync failed")
		}
		return err
	}

	total := 0
	regions := make([]string, 0, len(rep.Regions))
	for region, n := range rep.Regions {
		total += n
		regions = append(regions, region)
	}
	sort.Strings(regions)
	if spin != nil {
		spin.Success(fmt.Sprintf("Roster sync %s: %d players across %d regions", rep.RunID, total, len(regions)))
	}

	if r.EffectiveMode() == output.ModeJSON {
		type rosterView struct {
			RunID   string         `json:"run_id"`
			Regions map[string]int `json:"regions"`
			Players int            `json:"players"`
		}
		return r.JSON(rosterView{RunID: rep.RunID, Regions: rep.Regions, Players: total})
	}
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatHeader(1, "Roster sync"))
		r.Println("")
		r.Println(output.FormatKeyValue("Run", rep.RunID))
		r.Println(output.FormatKeyValue("Players", fmt.Sprintf("%d", total)))
	}
	for _, region := range regions {
		r.StatusLine(region, "success", fmt.Sprintf("%d players", rep.Regions[region]))
	}
	return nil
}

func runSyncCatalog(cmd *cobra.Command, _ []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	runner, err := newSyncRunner(cc)
	if err != nil {
		return err
	}
	region, _ := cmd.Flags().GetString("region")

	r := cc.Renderer
	var spin *output.Spinner
	if r.EffectiveMode() == output.ModeText {
		spin = r.NewSpinner(fmt.Sprintf("Syncing catalog from %s...", region))
		spin.Start()
	}

	rep, err := runner.CatalogSync(cmd.Context(), region)
	if err != nil {
		if spin != nil {
			spin.Fail("Catalog sync failed")
		}
		return err
	}
	if spin != nil {
		spin.Success(fmt.Sprintf("Catalog sync %s: fetched %d, added %d, skipped %d",
			rep.RunID, rep.Fetched, rep.Added, rep.Skipped))
	}

	if r.EffectiveMode() == output.ModeJSON {
		type catalogView struct {
			RunID   string `json:"run_id"`
			Region  string `json:"region"`
			Fetched int    `json:"fetched"`
			Added   int    `json:"added"`
			Skipped int    `json:"skipped"`
		}
		return r.JSON(catalogView{
			RunID: rep.RunID, Region: rep.Region,
			Fetched: rep.Fetched, Added: rep.Added, Skipped: rep.Skipped,
		})
	}
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatHeader(1, "Catalog sync"))
		r.Println("")
		r.Println(output.FormatKeyValue("Run", rep.RunID))
		r.Println(output.FormatKeyValue("Region", rep.Region))
		r.Println(output.FormatKeyValue("Fetched", fmt.Sprintf("%d", rep.Fetched)))
		r.Println(output.FormatKeyValue("Added", fmt.Sprintf("%d", rep.Added)))
		r.Println(output.FormatKeyValue("Skipped", fmt.Sprintf("%d", rep.Skipped)))
	}
	return nil
}

func runSyncStatus(cmd *cobra.Command, _ []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	states, err := cc.Store.AllSyncStates(cmd.Context())
	if err != nil {
		return err
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		type stateView struct {
			Key       string `json:"key"`
			Value     string `json:"value"`
			UpdatedAt string `json:"updated_at"`
		}
		views := make([]stateView, len(states))
		for i, s := range states {
			views[i] = stateView{Key: s.Key, Value: s.Value, UpdatedAt: formatWhen(s.UpdatedAt)}
		}
		return r.JSON(views)
	default:
		rows := make([][]string, len(states))
		for i, s := range states {
			rows[i] = []string{s.Key, s.Value, formatWhen(s.UpdatedAt)}
		}
		header := []string{"Job", "State", "Updated"}
		if r.EffectiveMode() == output.ModeMarkdown {
			renderMarkdownTable(r.Writer(), header, rows)
		} else {
			renderTable(r.Writer(), header, rows)
		}
		return nil
	}
}
