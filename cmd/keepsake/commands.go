package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"keepsake/internal/carousel"
	"keepsake/internal/content/adapter/remote"
	"keepsake/internal/content/config"
	"keepsake/internal/content/domain/model"
	"keepsake/internal/content/domain/repository"
	"keepsake/internal/content/fallback"
	"keepsake/internal/content/usecase"
	"keepsake/internal/session"
	apperrors "keepsake/internal/shared/errors"
	"keepsake/internal/shared/logger"

	"github.com/docopt/docopt-go"
)

type cli struct {
	client *remote.Client
	log    logger.Logger
	out    io.Writer
}

func newCLI(cfg *config.ClientConfig, log logger.Logger, out io.Writer) (*cli, error) {
	client, err := remote.NewClient(cfg, log)
	if err != nil {
		return nil, err
	}
	return &cli{client: client, log: log, out: out}, nil
}

func collectionArg(opts docopt.Opts) (model.Collection, error) {
	name, _ := opts.String("<collection>")
	return model.ParseCollection(name)
}

func idArg(opts docopt.Opts) (int64, error) {
	raw, _ := opts.String("<id>")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", raw)
	}
	return id, nil
}

func metadataFrom(opts docopt.Opts, base model.Metadata) model.Metadata {
	set := func(flag string, dst *string) {
		if v, err := opts.String(flag); err == nil {
			*dst = v
		}
	}
	set("--title", &base.Title)
	set("--date", &base.Date)
	set("--description", &base.Description)
	set("--caption", &base.Caption)
	return base
}

func readUploadFile(p string) (model.UploadFile, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return model.UploadFile{}, err
	}
	return model.UploadFile{Name: filepath.Base(p), Data: data}, nil
}

func (a *cli) printItem(it model.ContentItem) {
	switch {
	case it.Caption != "":
		fmt.Fprintf(a.out, "%d\t%s\t%s\t%q\n", it.ID, it.Kind(), it.MediaRef, it.Caption)
	case it.Title != "" || it.Date != "":
		fmt.Fprintf(a.out, "%d\t%s\t%s\t%q\t%s\n", it.ID, it.Kind(), it.MediaRef, it.Title, it.Date)
	default:
		fmt.Fprintf(a.out, "%d\t%s\t%s\n", it.ID, it.Kind(), it.MediaRef)
	}
}

// watch mirrors a collection and prints it after every change until interrupted.
func (a *cli) watch(opts docopt.Opts) error {
	col, err := collectionArg(opts)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	replica := usecase.NewReplicaStore(col, a.client, a.client, fallback.Items(col), a.log)
	replica.OnChange(func(items []model.ContentItem) {
		fmt.Fprintf(a.out, "-- %s: %d items\n", col, len(items))
		for _, it := range items {
			a.printItem(it)
		}
	})

	sub, source := replica.Mount(ctx)
	if source == usecase.SourceFallback {
		fmt.Fprintln(a.out, "-- showing the bundled dataset")
	}
	if sub == nil {
		fmt.Fprintln(a.out, "-- live updates unavailable")
		<-ctx.Done()
		return nil
	}
	defer sub.Release()

	<-ctx.Done()
	return nil
}

func (a *cli) list(opts docopt.Opts) error {
	col, err := collectionArg(opts)
	if err != nil {
		return err
	}
	dir := repository.Ascending
	if desc, _ := opts.Bool("--desc"); desc {
		dir = repository.Descending
	}
	items, err := a.client.FetchOrdered(context.Background(), col, repository.OrderByID, dir)
	if err != nil {
		return err
	}
	for _, it := range items {
		a.printItem(it)
	}
	return nil
}

func (a *cli) events(opts docopt.Opts) error {
	col, err := collectionArg(opts)
	if err != nil {
		return err
	}
	count, err := opts.Int("--count")
	if err != nil {
		return fmt.Errorf("invalid --count: %w", err)
	}
	events, err := a.client.RecentEvents(context.Background(), col, count)
	if err != nil {
		return err
	}
	for _, e := range events {
		fmt.Fprintf(a.out, "%s\t%s\t", e.Timestamp.Format("2006-01-02 15:04:05"), e.Kind)
		a.printItem(e.Row)
	}
	return nil
}

func (a *cli) create(opts docopt.Opts) error {
	col, err := collectionArg(opts)
	if err != nil {
		return err
	}
	ctx := context.Background()
	meta := metadataFrom(opts, model.Metadata{})
	pipeline := usecase.NewUploadPipeline(col, a.client, a.log)

	paths, _ := opts["<file>"].([]string)
	if len(paths) == 0 {
		id, err := pipeline.CreateWithoutMedia(ctx, meta)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "created %d\n", id)
		return nil
	}

	files := make([]model.UploadFile, 0, len(paths))
	for _, p := range paths {
		f, err := readUploadFile(p)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	ids, err := pipeline.SubmitCreate(ctx, files, meta, func(p model.Progress) {
		fmt.Fprintf(a.out, "uploading %d/%d\n", p.Completed, p.Total)
	})
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintf(a.out, "created %d\n", id)
	}
	return nil
}

// edit starts from the stored record so that omitted flags keep their values.
func (a *cli) edit(opts docopt.Opts) error {
	col, err := collectionArg(opts)
	if err != nil {
		return err
	}
	id, err := idArg(opts)
	if err != nil {
		return err
	}
	ctx := context.Background()

	current, err := a.find(ctx, col, id)
	if err != nil {
		return err
	}
	meta := metadataFrom(opts, model.Metadata{
		Title:       current.Title,
		Date:        current.Date,
		Description: current.Description,
		Caption:     current.Caption,
	})

	var file *model.UploadFile
	if p, err := opts.String("--file"); err == nil && p != "" {
		f, err := readUploadFile(p)
		if err != nil {
			return err
		}
		file = &f
	}

	if err := usecase.NewUploadPipeline(col, a.client, a.log).SubmitEdit(ctx, id, file, meta); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "updated %d\n", id)
	return nil
}

func (a *cli) find(ctx context.Context, col model.Collection, id int64) (model.ContentItem, error) {
	items, err := a.client.FetchOrdered(ctx, col, repository.OrderByID, repository.Ascending)
	if err != nil {
		return model.ContentItem{}, err
	}
	for _, it := range items {
		if it.ID == id {
			return it, nil
		}
	}
	return model.ContentItem{}, apperrors.NewNotFoundError(fmt.Sprintf("record %d in %s", id, col))
}

func (a *cli) delete(opts docopt.Opts) error {
	col, err := collectionArg(opts)
	if err != nil {
		return err
	}
	id, err := idArg(opts)
	if err != nil {
		return err
	}
	if err := usecase.NewUploadPipeline(col, a.client, a.log).Delete(context.Background(), id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %d\n", id)
	return nil
}

// seed copies the bundled dataset into both collections.
func (a *cli) seed() error {
	datasets := make(map[model.Collection][]model.ContentItem, len(model.Collections))
	for _, c := range model.Collections {
		datasets[c] = fallback.Items(c)
	}

	var errs []error
	for _, res := range usecase.SeedFromDatasets(context.Background(), a.client, datasets, a.log) {
		if res.Err != nil {
			errs = append(errs, res.Err)
			continue
		}
		fmt.Fprintf(a.out, "seeded %d records into %s\n", res.Inserted, res.Collection)
	}
	return errors.Join(errs...)
}

// unlock walks the gate with codes read one per line from in and prints the admin token.
func (a *cli) unlock(in io.Reader) error {
	ctx := context.Background()
	scanner := bufio.NewScanner(in)
	ticket := ""
	step, total := 0, 0

	for {
		if total > 0 {
			fmt.Fprintf(a.out, "code %d/%d: ", step+1, total)
		} else {
			fmt.Fprint(a.out, "code: ")
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return errors.New("gate not unlocked")
		}

		res, err := a.client.Unlock(ctx, ticket, strings.TrimSpace(scanner.Text()))
		if err != nil {
			if isWrongCode(err) {
				fmt.Fprintln(a.out, "wrong code")
				continue
			}
			return err
		}
		if res.Unlocked {
			fmt.Fprintf(a.out, "\nKEEPSAKE_ADMIN_TOKEN=%s\n", res.Token)
			return nil
		}
		ticket, step, total = res.Ticket, res.Step, res.Total
	}
}

// isWrongCode reports a rejected code. Those carry the current step; a rejected ticket does not.
func isWrongCode(err error) bool {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Type != apperrors.ErrorTypeAuthentication {
		return false
	}
	_, ok := appErr.Details["step"]
	return ok
}

func hashCode(opts docopt.Opts) error {
	code, _ := opts.String("<code>")
	hash, err := session.HashCode(code)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

// carousel prints the slide a snapping carousel settles on for the given layout.
func carouselCmd(opts docopt.Opts) error {
	count, err := opts.Int("<count>")
	if err != nil || count < 0 {
		return fmt.Errorf("invalid slide count")
	}
	num := func(flag string) (float64, error) {
		s, _ := opts.String(flag)
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", flag, err)
		}
		return v, nil
	}
	var vals [4]float64
	for i, flag := range []string{"--width", "--gap", "--viewport", "--scroll"} {
		if vals[i], err = num(flag); err != nil {
			return err
		}
	}
	fmt.Println(activeSlide(count, vals[0], vals[1], vals[2], vals[3]))
	return nil
}

func activeSlide(count int, width, gap, viewport, scroll float64) int {
	container, children := carousel.FixedLayout(count, width, gap, viewport, scroll)
	return carousel.ActiveIndex(container, children)
}
