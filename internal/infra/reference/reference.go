// Package reference loads the NELDA codebook that is attached to every
// free-text generation call.
package reference

import (
	"context"
	"os"

	"github.com/rotisserie/eris"

	"github.com/samtaplin/llmneldacoding/internal/domain/ai"
)

const DefaultMIMEType = "application/pdf"

// FileLoader reads the document from disk on every call so a replaced file
// is picked up without a restart.
type FileLoader struct {
	Path     string
	MIMEType string
}

func (l FileLoader) Load(ctx context.Context) (ai.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return ai.Attachment{}, err
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return ai.Attachment{}, eris.Wrapf(err, "reference: read %s", l.Path)
	}
	return attachment(l.MIMEType, data, l.Path)
}

// ObjectGetter is satisfied by the MinIO store.
type ObjectGetter interface {
	Object(ctx context.Context, key string) ([]byte, error)
}

// ObjectLoader reads the document from object storage.
type ObjectLoader struct {
	Store    ObjectGetter
	Key      string
	MIMEType string
}

func (l ObjectLoader) Load(ctx context.Context) (ai.Attachment, error) {
	data, err := l.Store.Object(ctx, l.Key)
	if err != nil {
		return ai.Attachment{}, eris.Wrapf(err, "reference: fetch %s", l.Key)
	}
	return attachment(l.MIMEType, data, l.Key)
}

func attachment(mime string, data []byte, name string) (ai.Attachment, error) {
	if len(data) == 0 {
		return ai.Attachment{}, eris.Errorf("reference: %s is empty", name)
	}
	if mime == "" {
		mime = DefaultMIMEType
	}
	return ai.Attachment{MIMEType: mime, Data: data}, nil
}
