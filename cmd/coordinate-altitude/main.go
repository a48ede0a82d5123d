package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	altitude "github.com/twpayne/go-altitude"
	"github.com/twpayne/go-altitude/blobstore"
	minioblobstore "github.com/twpayne/go-altitude/blobstore/minio"
	"github.com/twpayne/go-altitude/internal/config"
)

const usage = `usage: coordinate-altitude [-v] <COORDINATE>...
<COORDINATE>: <LATITUDE> <LONGITUDE> || "<LATITUDE>,<LONGITUDE>"`

var errUsage = errors.New(usage)

func run(args []string) error {
	verbose, coords, err := parseArgs(args)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	blobStore, err := newBlobStore(cfg)
	if err != nil {
		return err
	}

	resolver, err := altitude.NewResolver(
		altitude.WithLogger(logger),
		altitude.WithCacheStore(altitude.NewBlobCacheStore(
			blobStore,
			altitude.WithCacheName(cfg.CacheName),
			altitude.WithCacheLogger(logger),
		)),
		altitude.WithTransport(altitude.NewOpenElevationClient(
			altitude.WithBaseURL(cfg.BaseURL),
			altitude.WithTimeout(cfg.Timeout),
			altitude.WithMaxQueryLength(cfg.MaxQueryLength),
		)),
	)
	if err != nil {
		return err
	}

	err = resolver.AddAltitude(context.Background(), coords)
	var persistenceErr *altitude.PersistenceError
	switch {
	case errors.As(err, &persistenceErr):
		logger.Warn("altitudes not cached", "error", err)
	case err != nil:
		return err
	}

	for _, coord := range coords {
		fmt.Printf("altitude for (%s;%s) is %sm\n",
			strconv.FormatFloat(coord.Latitude(), 'f', -1, 64),
			strconv.FormatFloat(coord.Longitude(), 'f', -1, 64),
			strconv.FormatFloat(coord.Altitude(), 'f', -1, 64),
		)
	}
	return nil
}

// parseArgs parses the leading flags in args and the coordinates that follow
// them. Flag parsing stops at the first argument that starts with a number,
// so negative latitudes are not mistaken for flags.
func parseArgs(args []string) (bool, []altitude.Coordinate, error) {
	flagSet := flag.NewFlagSet("coordinate-altitude", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	verbose := flagSet.Bool("v", false, "verbose")

	n := 0
	for n < len(args) && !startsWithNumber(args[n]) {
		n++
		if args[n-1] == "--" {
			break
		}
	}
	if err := flagSet.Parse(args[:n]); err != nil {
		return false, nil, errUsage
	}
	if flagSet.NArg() != 0 {
		return false, nil, errUsage
	}

	coords, err := parseCoordinates(args[n:])
	if err != nil {
		return false, nil, err
	}
	return *verbose, coords, nil
}

func startsWithNumber(arg string) bool {
	lat, _, _ := strings.Cut(arg, ",")
	_, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	return err == nil
}

// parseCoordinates parses either a single latitude and longitude as two
// arguments or any number of "latitude,longitude" arguments.
func parseCoordinates(args []string) ([]altitude.Coordinate, error) {
	if len(args) == 2 && !strings.Contains(args[0], ",") && !strings.Contains(args[1], ",") {
		args = []string{args[0] + "," + args[1]}
	}
	if len(args) == 0 {
		return nil, errUsage
	}

	coords := make([]altitude.Coordinate, 0, len(args))
	for _, arg := range args {
		latStr, lonStr, ok := strings.Cut(arg, ",")
		if !ok {
			return nil, errUsage
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
		if err != nil {
			return nil, errUsage
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
		if err != nil {
			return nil, errUsage
		}
		coord, err := altitude.NewCoordinate(lat, lon)
		if err != nil {
			return nil, err
		}
		coords = append(coords, coord)
	}
	return coords, nil
}

func newBlobStore(cfg *config.Config) (blobstore.BlobStore, error) {
	if !cfg.MinIO.Enabled() {
		return blobstore.NewLocalStore(cfg.CacheDir), nil
	}
	client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
		Secure: cfg.MinIO.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: %w", err)
	}
	return minioblobstore.NewStore(client, cfg.MinIO.Bucket, cfg.MinIO.Prefix), nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
