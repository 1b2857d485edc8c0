// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import "database/sql"

// MeasureType distinguishes which measurement table a MeasureBlock
// range was carved from.
type MeasureType string

const (
	MeasureTypeCell MeasureType = "cell"
	MeasureTypeWifi MeasureType = "wifi"
)

// Prefix returns the zip/CSV naming prefix used in the archive for
// this measurement kind, matching the wire contract in spec.md §6.
func (m MeasureType) Prefix() string {
	switch m {
	case MeasureTypeCell:
		return "CellMeasure"
	case MeasureTypeWifi:
		return "WifiMeasure"
	default:
		return string(m)
	}
}

// CSVName returns the data file name written inside the archive zip.
func (m MeasureType) CSVName() string {
	switch m {
	case MeasureTypeCell:
		return "cell_measure.csv"
	case MeasureTypeWifi:
		return "wifi_measure.csv"
	default:
		return string(m) + "_measure.csv"
	}
}

// MeasureBlock represents a contiguous half-open range of measurement
// ids selected for archival as one unit. It is created with S3Key
// unset, transitions to "uploaded" once S3Key/ArchiveSHA are set, and
// finally to "reaped" once ArchiveDate is set; it is never mutated
// after that.
type MeasureBlock struct {
	ID          int64          `db:"id"`
	MeasureType MeasureType    `db:"measure_type"`
	StartID     int64          `db:"start_id"`
	EndID       int64          `db:"end_id"`
	S3Key       sql.NullString `db:"s3_key"`
	ArchiveSHA  sql.NullString `db:"archive_sha"`
	ArchiveDate sql.NullTime   `db:"archive_date"`
}

// Uploaded reports whether the writer has already assigned this block
// a destination key (it may or may not have finished the upload).
func (b *MeasureBlock) Uploaded() bool {
	return b.S3Key.Valid
}

// Reaped reports whether the source rows for this block have already
// been verified and deleted.
func (b *MeasureBlock) Reaped() bool {
	return b.ArchiveDate.Valid
}

// AwaitingWrite reports whether the block still needs a zip produced
// and uploaded.
func (b *MeasureBlock) AwaitingWrite() bool {
	return !b.S3Key.Valid
}

// AwaitingReap reports whether the block has been uploaded but its
// source rows have not yet been verified and deleted.
func (b *MeasureBlock) AwaitingReap() bool {
	return b.S3Key.Valid && !b.ArchiveDate.Valid
}
