// workerctl manages build workers registered with the controller store and mints bearer
// tokens for workers and the chat front-end.
//
//	workerctl register --name N [--ip A]
//	workerctl remove --id I
//	workerctl list
//	workerctl token --id I
//	workerctl frontend-token
//
// Store and token settings come from the same environment variables as the controller.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/wrwrabbit/apk-customizer-bot/internal/adapter/notify"
	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/logger"
	"github.com/wrwrabbit/apk-customizer-bot/internal/metrics"
	"github.com/wrwrabbit/apk-customizer-bot/internal/pkg/auth"
	"github.com/wrwrabbit/apk-customizer-bot/internal/storage"
	"github.com/wrwrabbit/apk-customizer-bot/internal/usecase"
)

const usage = `usage: workerctl <command> [flags]

commands:
  register --name N [--ip A]   register a worker
  remove --id I                remove a worker, requeuing its order
  list                         list workers and their liveness
  token --id I                 print a bearer token for a worker
  frontend-token               print a bearer token for the front-end
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.NewWithWriter(os.Stderr, cfg.LogLevel)

	store, err := storage.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	transitions := usecase.NewTransitions(store.Orders(), notify.Nop{}, metrics.NewNop(), log)
	tokens := auth.NewJWTStrategy(cfg.JWTSecret, auth.Options{})
	registry := usecase.NewWorkerRegistry(store.Workers(), store.Orders(), transitions, tokens, cfg)

	return execute(ctx, registry, args, out)
}

type registry interface {
	Register(ctx context.Context, name, ip string) (*model.Worker, error)
	Remove(ctx context.Context, id int64) error
	List(ctx context.Context) ([]model.Worker, error)
	Online(w model.Worker) bool
	IssueToken(ctx context.Context, id int64) (string, error)
	IssueFrontendToken() (string, error)
}

func execute(ctx context.Context, reg registry, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	command, rest := args[0], args[1:]

	flags := pflag.NewFlagSet("workerctl "+command, pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	name := flags.String("name", "", "worker name")
	ip := flags.String("ip", "", "allowed source address")
	id := flags.Int64("id", 0, "worker id")
	if err := flags.Parse(rest); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	switch command {
	case "register":
		if *name == "" {
			return fmt.Errorf("%w: --name is required", errUsage)
		}
		worker, err := reg.Register(ctx, *name, *ip)
		if err != nil {
			return fmt.Errorf("register worker: %w", err)
		}
		fmt.Fprintf(out, "registered worker %d (%s)\n", worker.ID, worker.Name)
		return nil
	case "remove":
		if *id <= 0 {
			return fmt.Errorf("%w: --id is required", errUsage)
		}
		if err := reg.Remove(ctx, *id); err != nil {
			return fmt.Errorf("remove worker: %w", err)
		}
		fmt.Fprintf(out, "removed worker %d\n", *id)
		return nil
	case "list":
		workers, err := reg.List(ctx)
		if err != nil {
			return fmt.Errorf("list workers: %w", err)
		}
		return printWorkers(out, reg, workers)
	case "token":
		if *id <= 0 {
			return fmt.Errorf("%w: --id is required", errUsage)
		}
		token, err := reg.IssueToken(ctx, *id)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Fprintln(out, token)
		return nil
	case "frontend-token":
		token, err := reg.IssueFrontendToken()
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Fprintln(out, token)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func printWorkers(out io.Writer, reg registry, workers []model.Worker) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tIP\tONLINE\tLAST SEEN")
	for _, w := range workers {
		ip := "*"
		if w.IP != nil {
			ip = *w.IP
		}
		lastSeen := "never"
		if w.LastOnlineDate.Unix() > 0 {
			lastSeen = w.LastOnlineDate.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\n", w.ID, w.Name, ip, reg.Online(w), lastSeen)
	}
	return tw.Flush()
}
