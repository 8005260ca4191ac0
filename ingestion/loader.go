package ingestion

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/steamset/core"
)

// GamesFile is the decoded content of one games file.
type GamesFile struct {
	Path         string
	Digest       string
	Applications []*core.Application
	Records      int
	Skipped      int
}

// ReviewsFile is the decoded content of one reviews file.
type ReviewsFile struct {
	Path    string
	Digest  string
	Reviews []*core.Review
	Records int
	Skipped int
}

// LoadGames decodes games files concurrently. Results keep the order of
// paths. Records with an unusable required_age are reported together as a
// *core.BatchValidationError.
func LoadGames(ctx context.Context, paths ...string) ([]*GamesFile, error) {
	return loadFiles(ctx, paths, parseGamesFile)
}

// LoadReviews decodes reviews files concurrently. Results keep the order of paths.
func LoadReviews(ctx context.Context, paths ...string) ([]*ReviewsFile, error) {
	return loadFiles(ctx, paths, parseReviewsFile)
}

func parseGamesFile(path string, r io.Reader) (*GamesFile, error) {
	file := &GamesFile{Path: path}
	body, sum := digesting(r)
	var problems []core.Problem
	err := eachElement(body, func(record any) error {
		file.Records++
		app, err := ParseGameRecord(record)
		if err != nil {
			id, _ := toInt64(pathSteamAppID.First(pathData.First(record)))
			problems = append(problems, core.Problem{Entity: "application", ID: id, Err: err})
			return nil
		}
		if app == nil {
			file.Skipped++
			return nil
		}
		file.Applications = append(file.Applications, app)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if file.Digest, err = sum(); err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		return nil, &core.BatchValidationError{Problems: problems}
	}
	slog.Default().With("component", "loader").Debug("decoded games file",
		"path", path, "digest", file.Digest, "records", file.Records,
		"applications", len(file.Applications), "skipped", file.Skipped)
	return file, nil
}

func parseReviewsFile(path string, r io.Reader) (*ReviewsFile, error) {
	file := &ReviewsFile{Path: path}
	body, sum := digesting(r)
	err := eachElement(body, func(record any) error {
		file.Records++
		reviews, skipped := ParseReviewRecord(record)
		file.Reviews = append(file.Reviews, reviews...)
		file.Skipped += skipped
		return nil
	})
	if err != nil {
		return nil, err
	}
	if file.Digest, err = sum(); err != nil {
		return nil, err
	}
	slog.Default().With("component", "loader").Debug("decoded reviews file",
		"path", path, "digest", file.Digest, "records", file.Records,
		"reviews", len(file.Reviews), "skipped", file.Skipped)
	return file, nil
}

// digesting hashes everything read through the returned reader. sum drains
// what the decoder left unread, so the digest always covers the whole file.
func digesting(r io.Reader) (io.Reader, func() (string, error)) {
	h := core.NewDigest()
	body := io.TeeReader(r, h)
	return body, func() (string, error) {
		if _, err := io.Copy(io.Discard, body); err != nil {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}
}

// eachElement streams the elements of a top-level JSON array.
func eachElement(r io.Reader, fn func(any) error) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("%w: top level is not an array", ErrMalformedPayload)
	}
	for dec.More() {
		var record any
		if err := dec.Decode(&record); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return nil
}

// loadFiles streams and parses every path on a worker pool sized to the
// number of CPUs.
func loadFiles[T any](ctx context.Context, paths []string, parse func(string, io.Reader) (T, error)) ([]T, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	pool, err := ants.NewPool(min(len(paths), max(runtime.NumCPU(), 1)))
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	results := make([]T, len(paths))
	errs := make([]error, len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			f, err := os.Open(path)
			if err != nil {
				errs[i] = fmt.Errorf("read %s: %w", path, err)
				return
			}
			defer f.Close()
			result, err := parse(path, bufio.NewReader(f))
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", path, err)
				return
			}
			results[i] = result
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = submitErr
		}
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return results, nil
}
