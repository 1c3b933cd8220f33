package sqlnative

import (
	"context"
	"time"

	"github.com/koustreak/ocisql/internal/native"
)

// descriptor holds the value Fetch wrote for a timestamp or LOB column.
type descriptor struct {
	kind native.DescriptorKind
	t    time.Time
	text string
}

func (l *Library) NewDescriptor(env native.Env, kind native.DescriptorKind) (native.Descriptor, native.Status) {
	if _, ok := l.envs.Get(uint64(env)); !ok {
		return 0, native.InvalidHandle
	}
	if kind != native.DescTimestamp && kind != native.DescLob {
		return 0, native.Error
	}
	return native.Descriptor(l.descs.Add(&descriptor{kind: kind})), native.Success
}

func (l *Library) FreeDescriptor(desc native.Descriptor, kind native.DescriptorKind) native.Status {
	d, ok := l.descs.Get(uint64(desc))
	if !ok || d.kind != kind {
		return native.InvalidHandle
	}
	l.descs.Remove(uint64(desc))
	return native.Success
}

func (l *Library) DateTimeGet(_ native.Env, _ native.ErrorHandle, desc native.Descriptor) (native.DateTime, native.Status) {
	d, ok := l.descs.Get(uint64(desc))
	if !ok || d.kind != native.DescTimestamp {
		return native.DateTime{}, native.InvalidHandle
	}
	return native.DateTimeOf(d.t), native.Success
}

func (l *Library) LobLength(_ context.Context, _ native.Session, _ native.ErrorHandle, desc native.Descriptor) (int, native.Status) {
	d, ok := l.descs.Get(uint64(desc))
	if !ok || d.kind != native.DescLob {
		return 0, native.InvalidHandle
	}
	return len(d.text), native.Success
}

func (l *Library) LobRead(_ context.Context, _ native.Session, _ native.ErrorHandle, desc native.Descriptor, buf []byte) (int, native.Status) {
	d, ok := l.descs.Get(uint64(desc))
	if !ok || d.kind != native.DescLob {
		return 0, native.InvalidHandle
	}
	return copy(buf, d.text), native.Success
}
