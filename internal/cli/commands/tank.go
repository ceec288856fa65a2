package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blitz-labs/tankrank/internal/cli/output"
	"github.com/blitz-labs/tankrank/internal/ledger"
)

// NewTankCommand creates the tank command group: catalog maintenance.
func NewTankCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tank",
		Short: "Maintain the tank catalog",
		Long: `Add, edit, merge, and remove catalog entries, and maintain the alias
table that maps alternate spellings onto canonical names.`,
	}

	cmd.AddCommand(newTankAddCommand())
	cmd.AddCommand(newTankEditCommand())
	cmd.AddCommand(newTankRemoveCommand())
	cmd.AddCommand(newTankMergeCommand())
	cmd.AddCommand(newTankListCommand())
	cmd.AddCommand(newTankAliasCommand())

	return cmd
}

// tankView is the JSON shape for one catalog entry.
type tankView struct {
	Name      string `json:"name"`
	Tier      int    `json:"tier"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at,omitempty"`
}

func viewTank(t *ledger.Tank) tankView {
	v := tankView{Name: t.Name, Tier: t.Tier, Type: string(t.Type)}
	if !t.CreatedAt.IsZero() {
		v.CreatedAt = ledger.FormatTime(t.CreatedAt)
	}
	return v
}

func parseTankType(s string) (ledger.TankType, error) {
	t := ledger.TankType(strings.ToLower(strings.TrimSpace(s)))
	if !ledger.ValidTankType(t) {
		return "", fmt.Errorf("invalid type %q (valid: light, medium, heavy, td)", s)
	}
	return t, nil
}

func newTankAddCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a tank to the catalog",
		Args:  cobra.ExactArgs(1),
		RunE:  runTankAdd,
	}
	cmd.Flags().Int("tier", 0, "tank tier (1-10)")
	cmd.Flags().String("type", "", "tank type (light|medium|heavy|td)")
	cmd.Flags().String("actor", "", "actor recorded in the audit trail")
	_ = cmd.MarkFlagRequired("tier")
	_ = cmd.MarkFlagRequired("type")
	registerTypeCompletion(cmd)

	return cmd
}

func runTankAdd(cmd *cobra.Command, args []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	tier, _ := cmd.Flags().GetInt("tier")
	rawType, _ := cmd.Flags().GetString("type")
	typ, err := parseTankType(rawType)
	if err != nil {
		return err
	}

	tank, err := cc.Store.AddTank(cmd.Context(), args[0], tier, typ, actorFlag(cmd))
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(viewTank(tank))
	}
	r.Success(fmt.Sprintf("Added %s (tier %d %s)", tank.Name, tank.Tier, tank.Type))
	return nil
}

func newTankEditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit NAME",
		Short: "Change a tank's tier, type, or name",
		Long: `Change catalog fields on an existing tank. Renaming keeps the old
spelling resolvable: it is recorded as an alias of the new name.`,
		Args: cobra.ExactArgs(1),
		RunE: runTankEdit,
	}
	cmd.Flags().Int("tier", 0, "new tier (1-10)")
	cmd.Flags().String("type", "", "new type (light|medium|heavy|td)")
	cmd.Flags().String("rename", "", "new canonical name")
	cmd.Flags().String("actor", "", "actor recorded in the audit trail")
	registerTypeCompletion(cmd)

	return cmd
}

func runTankEdit(cmd *cobra.Command, args []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	var upd ledger.TankUpdate
	if cmd.Flags().Changed("tier") {
		v, _ := cmd.Flags().GetInt("tier")
		upd.Tier = &v
	}
	if cmd.Flags().Changed("type") {
		raw, _ := cmd.Flags().GetString("type")
		typ, err := parseTankType(raw)
		if err != nil {
			return err
		}
		upd.Type = &typ
	}
	if cmd.Flags().Changed("rename") {
		v, _ := cmd.Flags().GetString("rename")
		upd.Rename = &v
	}
	if upd.Tier == nil && upd.Type == nil && upd.Rename == nil {
		return errors.New("nothing to change: pass --tier, --type, or --rename")
	}

	tank, err := cc.Resolver.ResolveTank(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	updated, err := cc.Store.EditTank(cmd.Context(), tank.Name, upd, actorFlag(cmd))
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(viewTank(updated))
	}
	if upd.Rename != nil && updated.Name != tank.Name {
		r.Success(fmt.Sprintf("Renamed %s to %s (tier %d %s); old name kept as alias",
			tank.Name, updated.Name, updated.Tier, updated.Type))
		return nil
	}
	r.Success(fmt.Sprintf("Updated %s (tier %d %s)", updated.Name, updated.Tier, updated.Type))
	return nil
}

func newTankRemoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove NAME",
		Short: "Remove a tank from the catalog",
		Long: `Remove a catalog entry and its aliases. Removal is refused while
submissions still reference the tank; merge or delete them first.`,
		Args: cobra.ExactArgs(1),
		RunE: runTankRemove,
	}
	cmd.Flags().String("actor", "", "actor recorded in the audit trail")

	return cmd
}

func runTankRemove(cmd *cobra.Command, args []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	tank, err := cc.Resolver.ResolveTank(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := cc.Store.RemoveTank(cmd.Context(), tank.Name, actorFlag(cmd)); err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]string{"removed": tank.Name})
	}
	r.Success(fmt.Sprintf("Removed %s", tank.Name))
	return nil
}

func newTankMergeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge SOURCE TARGET",
		Short: "Merge one tank's submissions into another",
		Long: `Move every submission from SOURCE onto TARGET, keeping the better
score per player, then remove SOURCE and alias its name to TARGET.`,
		Args: cobra.ExactArgs(2),
		RunE: runTankMerge,
	}
	cmd.Flags().String("actor", "", "actor recorded in the audit trail")

	return cmd
}

func runTankMerge(cmd *cobra.Command, args []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	source, err := cc.Resolver.ResolveTank(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	target, err := cc.Resolver.ResolveTank(cmd.Context(), args[1])
	if err != nil {
		return err
	}

	rep, err := cc.Store.MergeTanks(cmd.Context(), source.Name, target.Name, actorFlag(cmd))
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(rep)
	}
	r.Success(fmt.Sprintf("Merged %s into %s", rep.Source, rep.Target))
	r.Printf("  moved %d, upgraded %d, dropped %d\n", rep.Moved, rep.Upgraded, rep.Dropped)
	return nil
}

func newTankListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		RunE:  runTankList,
	}
	cmd.Flags().Int("tier", 0, "only this tier")
	cmd.Flags().String("type", "", "only this type (light|medium|heavy|td)")
	registerTypeCompletion(cmd)

	return cmd
}

func runTankList(cmd *cobra.Command, _ []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	filter, err := tankFilterFlags(cmd)
	if err != nil {
		return err
	}

	tanks, err := cc.Store.Tanks(cmd.Context(), filter)
	if err != nil {
		return err
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		views := make([]tankView, len(tanks))
		for i := range tanks {
			views[i] = viewTank(&tanks[i])
		}
		return r.JSON(views)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, fmt.Sprintf("Catalog (%d tanks)", len(tanks))))
		r.Println("")
		renderMarkdownTable(r.Writer(), []string{"Tank", "Tier", "Type"}, tankListRows(tanks))
		return nil
	default:
		renderTable(r.Writer(), []string{"Tank", "Tier", "Type"}, tankListRows(tanks))
		return nil
	}
}

func tankListRows(tanks []ledger.Tank) [][]string {
	rows := make([][]string, len(tanks))
	for i, t := range tanks {
		rows[i] = []string{t.Name, fmt.Sprintf("%d", t.Tier), string(t.Type)}
	}
	return rows
}

// tankFilterFlags builds a catalog filter from the shared --tier and --type
// flags.
func tankFilterFlags(cmd *cobra.Command) (ledger.TankFilter, error) {
	var filter ledger.TankFilter
	if cmd.Flags().Changed("tier") {
		v, _ := cmd.Flags().GetInt("tier")
		filter.Tier = &v
	}
	if cmd.Flags().Changed("type") {
		raw, _ := cmd.Flags().GetString("type")
		typ, err := parseTankType(raw)
		if err != nil {
			return filter, err
		}
		filter.Type = &typ
	}
	return filter, nil
}

func registerTypeCompletion(cmd *cobra.Command) {
	_ = cmd.RegisterFlagCompletionFunc("type", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		types := make([]string, len(ledger.TankTypes))
		for i, t := range ledger.TankTypes {
			types[i] = string(t)
		}
		return types, cobra.ShellCompDirectiveNoFileComp
	})
}

func newTankAliasCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alias",
		Short: "Maintain alternate spellings",
	}

	add := &cobra.Command{
		Use:   "add ALIAS TANK",
		Short: "Map an alternate spelling onto a tank",
		Args:  cobra.ExactArgs(2),
		RunE:  runAliasAdd,
	}
	add.Flags().String("actor", "", "actor recorded in the audit trail")

	list := &cobra.Command{
		Use:   "list [TANK]",
		Short: "List aliases, optionally for one tank",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAliasList,
	}

	cmd.AddCommand(add)
	cmd.AddCommand(list)

	return cmd
}

func runAliasAdd(cmd *cobra.Command, args []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	tank, err := cc.Resolver.ResolveTank(cmd.Context(), args[1])
	if err != nil {
		return err
	}

	alias, err := cc.Store.AddAlias(cmd.Context(), args[0], tank.Name, actorFlag(cmd))
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]string{"alias": alias.AliasRaw, "tank": alias.TankName})
	}
	r.Success(fmt.Sprintf("Alias %q now resolves to %s", alias.AliasRaw, alias.TankName))
	return nil
}

func runAliasList(cmd *cobra.Command, args []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	var aliases []ledger.TankAlias
	if len(args) == 1 {
		tank, err := cc.Resolver.ResolveTank(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		aliases, err = cc.Store.Aliases(cmd.Context(), tank.Name)
		if err != nil {
			return err
		}
	} else {
		var err error
		aliases, err = cc.Store.AllAliases(cmd.Context())
		if err != nil {
			return err
		}
	}

	rows := make([][]string, len(aliases))
	for i, a := range aliases {
		rows[i] = []string{a.AliasRaw, a.TankName}
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		type aliasView struct {
			Alias string `json:"alias"`
			Tank  string `json:"tank"`
		}
		views := make([]aliasView, len(aliases))
		for i, a := range aliases {
			views[i] = aliasView{Alias: a.AliasRaw, Tank: a.TankName}
		}
		return r.JSON(views)
	case output.ModeMarkdown:
		renderMarkdownTable(r.Writer(), []string{"Alias", "Tank"}, rows)
		return nil
	default:
		renderTable(r.Writer(), []string{"Alias", "Tank"}, rows)
		return nil
	}
}
