package coordinator

import (
	"github.com/cuemby/tierstore/pkg/manifest"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

func manifestRecord(h tstypes.Header) manifest.Record {
	return manifest.Record{Op: manifest.OpPut, Header: h}
}
