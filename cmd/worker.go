package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/frahmantamala/table-reservation/internal/messaging"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start the background workers: the lifecycle sweeps and the notification consumer.`,
}

var schedulerWorkerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the recurring lifecycle sweeps",
	Long:  `Expire unpaid reservations, expire lapsed waitlist claims and complete finished reservations on their configured intervals.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runWorker(cmd.Context(), startScheduler); err != nil {
			fmt.Fprintf(os.Stderr, "Scheduler worker error: %v\n", err)
			os.Exit(1)
		}
	},
}

var notificationWorkerCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Consume lifecycle events and deliver user notifications",
	Long:  `Consume reservation events from the AMQP queue and hand them to the notifier.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runWorker(cmd.Context(), startNotifications); err != nil {
			fmt.Fprintf(os.Stderr, "Notification worker error: %v\n", err)
			os.Exit(1)
		}
	},
}

var allWorkersCmd = &cobra.Command{
	Use:   "all",
	Short: "Run every background worker in one process",
	Run: func(cmd *cobra.Command, args []string) {
		err := runWorker(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return startScheduler(ctx, deps) })
			if deps.Config.Messaging.Driver == "amqp" {
				g.Go(func() error { return startNotifications(ctx, deps) })
			}
			return g.Wait()
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Worker error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	workerCmd.AddCommand(schedulerWorkerCmd)
	workerCmd.AddCommand(notificationWorkerCmd)
	workerCmd.AddCommand(allWorkersCmd)
}

func runWorker(parent context.Context, run func(ctx context.Context, deps *Dependencies) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx, appOptions{})
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	err = run(ctx, deps)
	if errors.Is(err, context.Canceled) {
		deps.Logger.Info("worker stopped")
		return nil
	}
	return err
}

func startScheduler(ctx context.Context, deps *Dependencies) error {
	if !deps.Config.Scheduler.Enabled {
		deps.Logger.Warn("scheduler disabled by configuration")
		<-ctx.Done()
		return ctx.Err()
	}
	deps.Logger.Info("scheduler worker started", "batch_size", deps.Config.Scheduler.BatchSize)
	return deps.Scheduler.Run(ctx)
}

func startNotifications(ctx context.Context, deps *Dependencies) error {
	msg := deps.Config.Messaging
	if msg.Driver != "amqp" {
		return fmt.Errorf("notification consumer needs the amqp messaging driver, got %q", msg.Driver)
	}
	notifier := messaging.NewNotifier(deps.Logger)
	deps.Logger.Info("notification worker started", "queue", msg.Queue)
	return messaging.NewConsumer(msg.AMQPURL, msg.Queue, notifier.Handle, deps.Logger).Run(ctx)
}
