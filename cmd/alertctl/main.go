package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/stockwatch/alert-composer/internal/alertfile"
	"github.com/stockwatch/alert-composer/internal/alertform"
	"github.com/stockwatch/alert-composer/internal/catalog"
	"github.com/stockwatch/alert-composer/internal/client"
	"github.com/stockwatch/alert-composer/internal/config"
	"github.com/stockwatch/alert-composer/internal/fielderrors"
	"github.com/stockwatch/alert-composer/internal/logger"
	"github.com/stockwatch/alert-composer/internal/model"
	"github.com/stockwatch/alert-composer/internal/payload"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "alertctl",
		Usage: "manage stockwatch alerts from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config/config.yaml",
				Usage:   "path of the service configuration",
				EnvVars: []string{"CONFIG_PATH"},
			},
			&cli.StringFlag{
				Name:    "backend-url",
				Usage:   "stockwatch backend URL, overrides the configuration",
				EnvVars: []string{"BACKEND_URL"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "API token of the stockwatch user",
				EnvVars: []string{"STOCKWATCH_TOKEN"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log requests to stderr",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "indicators",
				Usage:  "list the indicator catalog",
				Action: listIndicators,
			},
			{
				Name:  "alerts",
				Usage: "list, show, create, edit and delete alerts",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "list alerts",
						Action: listAlerts,
					},
					{
						Name:      "show",
						Usage:     "print one alert as JSON",
						ArgsUsage: "ID",
						Action:    showAlert,
					},
					{
						Name:      "delete",
						Usage:     "delete an alert",
						ArgsUsage: "ID",
						Action:    deleteAlert,
					},
					{
						Name:  "create",
						Usage: "create an alert from a YAML definition",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true, Usage: "definition file, - for stdin"},
							&cli.BoolFlag{Name: "dry-run", Usage: "print the payload instead of sending it"},
						},
						Action: createAlert,
					},
					{
						Name:      "edit",
						Usage:     "apply a YAML definition to an existing alert",
						ArgsUsage: "ID",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true, Usage: "definition file, - for stdin"},
							&cli.BoolFlag{Name: "dry-run", Usage: "print the payload instead of sending it"},
						},
						Action: editAlert,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every command needs to reach the backend
type env struct {
	client *client.BackendClient
	loader *catalog.Loader
	token  string
	logger *zap.Logger
}

func newEnv(c *cli.Context) (*env, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if url := c.String("backend-url"); url != "" {
		cfg.Backend.URL = url
	}

	token := c.String("token")
	if token == "" {
		return nil, cli.Exit("an API token is required, set --token or STOCKWATCH_TOKEN", 2)
	}

	logCfg := config.LoggingConfig{Level: "warn", Format: "console"}
	if c.Bool("verbose") {
		logCfg.Level = "debug"
	}
	log := logger.New(logCfg)

	backendClient := client.NewBackendClient(cfg.Backend.URL, cfg.Backend.Timeout, log)
	return &env{
		client: backendClient,
		loader: catalog.NewLoader(backendClient, nil, catalog.CacheConfig{}, log),
		token:  token,
		logger: log,
	}, nil
}

func alertID(c *cli.Context) (int, error) {
	id, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return 0, cli.Exit("an alert ID is required", 2)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func listIndicators(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	cat, err := e.loader.Load(c.Context, e.token)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDISPLAY NAME\tLINES\tPARAMETERS")
	for _, ind := range cat.Indicators() {
		lines := make([]string, 0, len(ind.Lines))
		for _, l := range ind.Lines {
			lines = append(lines, l.Name)
		}
		params := make([]string, 0, len(ind.Parameters))
		for _, p := range ind.Parameters {
			params = append(params, fmt.Sprintf("%s:%s", p.Name, p.Type))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ind.Name, ind.DisplayName, strings.Join(lines, ","), strings.Join(params, " "))
	}
	return w.Flush()
}

func listAlerts(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	alerts, err := e.client.ListAlerts(c.Context, e.token)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTOCK\tTYPE\tACTIVE\tINTERVAL")
	for _, a := range alerts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%d\n", a.ID, a.Stock, a.AlertType, a.IsActive, a.CheckInterval())
	}
	return w.Flush()
}

func showAlert(c *cli.Context) error {
	id, err := alertID(c)
	if err != nil {
		return err
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	detail, err := e.client.GetAlert(c.Context, e.token, id)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, detail)
}

func deleteAlert(c *cli.Context) error {
	id, err := alertID(c)
	if err != nil {
		return err
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	if err := e.client.DeleteAlert(c.Context, e.token, id); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted alert %d\n", id)
	return nil
}

func readDefinition(c *cli.Context) (*alertfile.Definition, error) {
	path := c.String("file")
	if path == "-" {
		return alertfile.Parse(c.App.Reader)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return alertfile.Parse(f)
}

func createAlert(c *cli.Context) error {
	def, err := readDefinition(c)
	if err != nil {
		return err
	}
	if def.Stock == "" {
		return cli.Exit("the definition has no stock", 2)
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	return e.submit(c, alertform.NewController(def.Stock), def)
}

func editAlert(c *cli.Context) error {
	id, err := alertID(c)
	if err != nil {
		return err
	}
	def, err := readDefinition(c)
	if err != nil {
		return err
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	detail, err := e.client.GetAlert(c.Context, e.token, id)
	if err != nil {
		return err
	}
	ctrl, err := alertform.NewEditController(detail)
	if err != nil {
		return err
	}
	return e.submit(c, ctrl, def)
}

// submit applies def to ctrl and sends the result, printing every
// form error when the form is invalid or the backend rejects it
func (e *env) submit(c *cli.Context, ctrl *alertform.Controller, def *alertfile.Definition) error {
	if len(def.Conditions) > 0 || ctrl.AlertType() == model.AlertTypeIndicatorChain {
		cat, err := e.loader.Load(c.Context, e.token)
		if err != nil {
			return fmt.Errorf("failed to load indicators: %w", err)
		}
		ctrl.SetCatalog(cat)
	}

	if err := alertfile.Apply(ctrl, def); err != nil {
		return err
	}
	ctrl.MarkAllTouched()
	if !ctrl.Valid() {
		return e.reportInvalid(c, ctrl, "The alert is invalid")
	}

	result, err := payload.Serialize(ctrl)
	if err != nil {
		return err
	}
	if c.Bool("dry-run") {
		return printJSON(c.App.Writer, result.Payload)
	}

	message, err := e.send(c.Context, ctrl, result.Payload)
	if err == nil {
		fmt.Fprintln(c.App.Writer, message)
		return nil
	}
	var rejected *client.ValidationError
	if errors.As(err, &rejected) {
		mapped := fielderrors.Apply(ctrl, result.Order, rejected.Body, e.logger)
		for _, key := range mapped.Unmatched {
			fmt.Fprintf(c.App.ErrWriter, "%s: rejected by the backend\n", key)
		}
		message = "The backend rejected the alert"
		if mapped.Detail != "" {
			message = mapped.Detail
		}
		return e.reportInvalid(c, ctrl, message)
	}
	return err
}

func (e *env) send(ctx context.Context, ctrl *alertform.Controller, p model.AlertPayload) (string, error) {
	if id := ctrl.AlertID(); id != nil {
		if err := e.client.UpdateAlert(ctx, e.token, *id, p); err != nil {
			return "", err
		}
		return fmt.Sprintf("Updated alert %d", *id), nil
	}
	id, err := e.client.CreateAlert(ctx, e.token, p)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created alert %d", id), nil
}

func (e *env) reportInvalid(c *cli.Context, ctrl *alertform.Controller, message string) error {
	for _, line := range alertfile.Report(ctrl.Snapshot()) {
		fmt.Fprintln(c.App.ErrWriter, line)
	}
	return cli.Exit(message, 1)
}
