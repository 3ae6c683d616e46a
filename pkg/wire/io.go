// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wire

import "io"

// ByteReader is what the span codec needs to decode a record: ordinary
// byte-at-a-time reads for varints plus bulk reads for strings/bytes.
// *bufio.Reader and *Cursor both satisfy it, which lets the same decode
// logic serve streaming reads (IET files, the file-watch provider) and
// offset-based reads (mmap, TCP payloads).
type ByteReader interface {
	io.Reader
	io.ByteReader
}

// ByteWriter is the writer-side counterpart of ByteReader.
type ByteWriter interface {
	io.Writer
	io.ByteWriter
}
