package workload

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/canonical/pebble/client"

	"smfoperator/pkg/core"
)

type fakePebble struct {
	files     map[string]string
	modes     map[string]os.FileMode
	layers    [][]byte
	restarts  int
	replans   int
	active    bool
	sysErr    error
	pushErr   error
	changeErr string
}

func newFakePebble() *fakePebble {
	return &fakePebble{files: map[string]string{}, modes: map[string]os.FileMode{}}
}

func (f *fakePebble) SysInfo() (*client.SysInfo, error) {
	if f.sysErr != nil {
		return nil, f.sysErr
	}
	return &client.SysInfo{Version: "1.17.0"}, nil
}

func (f *fakePebble) ListFiles(opts *client.ListFilesOptions) ([]*client.FileInfo, error) {
	if opts.Path == core.ConfigDir && f.sysErr == nil {
		return []*client.FileInfo{}, nil
	}
	return nil, &client.Error{Kind: "not-found", Message: "no such directory"}
}

func (f *fakePebble) Push(opts *client.PushOptions) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	content, err := io.ReadAll(opts.Source)
	if err != nil {
		return err
	}
	f.files[opts.Path] = string(content)
	f.modes[opts.Path] = opts.Permissions
	return nil
}

func (f *fakePebble) Pull(opts *client.PullOptions) error {
	content, ok := f.files[opts.Path]
	if !ok {
		return &client.Error{Kind: "not-found", Message: "no such file"}
	}
	_, err := io.WriteString(opts.Target, content)
	return err
}

func (f *fakePebble) RemovePath(opts *client.RemovePathOptions) error {
	if _, ok := f.files[opts.Path]; !ok {
		return &client.Error{Kind: "not-found"}
	}
	delete(f.files, opts.Path)
	return nil
}

func (f *fakePebble) AddLayer(opts *client.AddLayerOptions) error {
	if !opts.Combine || opts.Label != layerLabel {
		return errors.New("unexpected layer options")
	}
	f.layers = append(f.layers, opts.LayerData)
	return nil
}

func (f *fakePebble) Restart(opts *client.ServiceOptions) (string, error) {
	f.restarts++
	f.active = true
	return "1", nil
}

func (f *fakePebble) Replan(*client.ServiceOptions) (string, error) {
	f.replans++
	f.active = true
	return "2", nil
}

func (f *fakePebble) WaitChange(id string, _ *client.WaitChangeOptions) (*client.Change, error) {
	return &client.Change{ID: id, Ready: true, Err: f.changeErr}, nil
}

func (f *fakePebble) Services(*client.ServicesOptions) ([]*client.ServiceInfo, error) {
	current := client.StatusInactive
	if f.active {
		current = client.StatusActive
	}
	return []*client.ServiceInfo{{Name: core.ServiceName, Current: current}}, nil
}

func rendered() core.RenderedConfig {
	files := map[string][]byte{
		core.ConfigFile:      []byte("configuration: {}\n"),
		core.UERoutingFile:   []byte("info: {}\n"),
		core.PrivateKeyFile:  []byte("key"),
		core.CertificateFile: []byte("cert"),
	}
	layer := []byte("services: {}\n")
	return core.RenderedConfig{Files: files, Layer: layer, Checksum: core.HashFiles(files, layer)}
}

func TestPebbleApply(t *testing.T) {
	fake := newFakePebble()
	handle := NewPebbleWithClient(fake)
	ctx := context.Background()
	cfg := rendered()

	if !handle.CanConnect(ctx) || !handle.StorageAttached(ctx) {
		t.Fatalf("expected reachable workload with storage")
	}
	applied, err := handle.AppliedChecksum(ctx)
	if err != nil || applied != "" {
		t.Fatalf("expected no applied checksum, got %q %v", applied, err)
	}

	if err := handle.Push(ctx, cfg); err != nil {
		t.Fatalf("push: %v", err)
	}
	if fake.files[core.ConfigFile] != "configuration: {}\n" || fake.modes[core.PrivateKeyFile] != 0o600 || fake.modes[core.ConfigFile] != 0o644 {
		t.Fatalf("unexpected pushed files %+v %+v", fake.files, fake.modes)
	}
	if _, ok := fake.files[core.ChecksumFile]; ok {
		t.Fatalf("checksum must only be recorded after restart")
	}

	if err := handle.Restart(ctx, cfg); err != nil {
		t.Fatalf("restart: %v", err)
	}
	applied, _ = handle.AppliedChecksum(ctx)
	if applied != cfg.Checksum || fake.restarts != 1 || len(fake.layers) != 1 {
		t.Fatalf("unexpected restart outcome %q %d", applied, fake.restarts)
	}

	if err := handle.Replan(ctx, cfg); err != nil || fake.replans != 1 {
		t.Fatalf("replan: %v", err)
	}
	running, err := handle.Running(ctx)
	if err != nil || !running {
		t.Fatalf("expected running service")
	}

	if err := handle.RemoveTLS(ctx); err != nil {
		t.Fatalf("remove tls: %v", err)
	}
	if err := handle.RemoveTLS(ctx); err != nil {
		t.Fatalf("remove tls must ignore missing files: %v", err)
	}
	if _, ok := fake.files[core.CertificateFile]; ok {
		t.Fatalf("certificate not removed")
	}
}

func TestPebbleErrors(t *testing.T) {
	fake := newFakePebble()
	handle := NewPebbleWithClient(fake)
	ctx := context.Background()

	fake.sysErr = errors.New("socket closed")
	if handle.CanConnect(ctx) || handle.StorageAttached(ctx) {
		t.Fatalf("expected unreachable workload")
	}

	fake.pushErr = errors.New("connection reset")
	if err := handle.Push(ctx, rendered()); !core.IsRetryable(err) {
		t.Fatalf("expected retryable push error, got %v", err)
	}

	fake.changeErr = "service smf exited"
	err := handle.Restart(ctx, rendered())
	if err == nil || core.IsRetryable(err) {
		t.Fatalf("expected permanent change failure, got %v", err)
	}

	if err := handle.Replan(ctx, core.RenderedConfig{}); err == nil {
		t.Fatalf("expected missing layer to fail")
	}
}
