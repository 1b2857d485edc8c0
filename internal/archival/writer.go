// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package archival

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/ichnaea-go/locationd/internal/objectstore"
	"github.com/ichnaea-go/locationd/internal/repository"
	"github.com/ichnaea-go/locationd/pkg/schema"
)

// Writer serializes planned blocks to zipped CSV and uploads them.
type Writer struct {
	repo  *repository.Repository
	store objectstore.Store
}

// NewWriter builds a Writer that uploads through store.
func NewWriter(repo *repository.Repository, store objectstore.Store) *Writer {
	return &Writer{repo: repo, store: store}
}

// WriteAll writes and uploads every block of mt still awaiting a
// write, and returns how many it completed.
func (w *Writer) WriteAll(ctx context.Context, tx *repository.Transaction, mt schema.MeasureType, when time.Time) (int, error) {
	blocks, err := w.repo.ListAwaitingWrite(ctx, tx, mt)
	if err != nil {
		return 0, fmt.Errorf("list blocks awaiting write: %w", err)
	}

	written := 0
	for _, block := range blocks {
		if err := w.writeOne(ctx, tx, block, when); err != nil {
			return written, fmt.Errorf("write block %d: %w", block.ID, err)
		}
		written++
	}
	return written, nil
}

func (w *Writer) writeOne(ctx context.Context, tx *repository.Transaction, block *schema.MeasureBlock, when time.Time) error {
	rows, err := w.repo.FetchMeasureRange(ctx, tx, block.MeasureType, block.StartID, block.EndID)
	if err != nil {
		return err
	}

	csvBody, err := measureCSV(block.MeasureType, rows)
	if err != nil {
		return err
	}

	scratch, err := newScratchDir()
	if err != nil {
		return err
	}
	defer scratch.Close()

	csvPath := scratch.Join(block.MeasureType.CSVName())
	if err := os.WriteFile(csvPath, csvBody, 0o640); err != nil {
		return fmt.Errorf("write csv payload: %w", err)
	}

	zipData, err := buildArchiveZip(csvPath, block.MeasureType.CSVName())
	if err != nil {
		return err
	}

	sum := sha1.Sum(zipData)
	sha1Hex := hex.EncodeToString(sum[:])

	key := fmt.Sprintf("%s/%s_%d_%d.zip",
		when.UTC().Format("200601"), block.MeasureType.Prefix(), block.StartID, block.EndID)

	if err := w.store.Put(ctx, key, zipData); err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}

	return w.repo.MarkUploaded(ctx, tx, block.ID, key, sha1Hex)
}

// buildArchiveZip assembles the archive payload the writer uploads: an
// alembic_revision.txt stamp holding the compiled-in
// repository.SchemaVersion alongside the measurement CSV read back from
// csvPath, deflate-compressed.
func buildArchiveZip(csvPath, csvName string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	stampW, err := zw.Create("alembic_revision.txt")
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintf(stampW, "%d\n", repository.SchemaVersion); err != nil {
		return nil, err
	}

	csvFile, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer csvFile.Close()

	csvW, err := zw.Create(csvName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(csvW, csvFile); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// measureCSV renders a fetched batch of measurement rows to CSV with a
// header row, in the excel dialect the original export used.
func measureCSV(mt schema.MeasureType, rows interface{}) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	cw.UseCRLF = true

	switch mt {
	case schema.MeasureTypeCell:
		cells, ok := rows.([]schema.CellMeasure)
		if !ok {
			return nil, fmt.Errorf("measureCSV: unexpected row type for cell measures")
		}
		cw.Write([]string{"id", "radio", "mcc", "mnc", "lac", "cid", "lat", "lon", "time", "created"})
		for _, m := range cells {
			cw.Write([]string{
				strconv.FormatInt(m.ID, 10),
				string(m.Radio),
				strconv.Itoa(int(m.MCC)),
				strconv.Itoa(int(m.MNC)),
				strconv.Itoa(int(m.LAC)),
				strconv.FormatInt(m.CID, 10),
				strconv.FormatInt(m.Lat, 10),
				strconv.FormatInt(m.Lon, 10),
				m.Time.UTC().Format(time.RFC3339),
				m.Created.UTC().Format(time.RFC3339),
			})
		}
	default:
		wifis, ok := rows.([]schema.WifiMeasure)
		if !ok {
			return nil, fmt.Errorf("measureCSV: unexpected row type for wifi measures")
		}
		cw.Write([]string{"id", "key", "lat", "lon", "time", "created"})
		for _, m := range wifis {
			cw.Write([]string{
				strconv.FormatInt(m.ID, 10),
				string(m.Key),
				strconv.FormatInt(m.Lat, 10),
				strconv.FormatInt(m.Lon, 10),
				m.Time.UTC().Format(time.RFC3339),
				m.Created.UTC().Format(time.RFC3339),
			})
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
