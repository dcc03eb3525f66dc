package workload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/canonical/pebble/client"

	"smfoperator/pkg/core"
	"smfoperator/pkg/render"
)

// PebbleClient is the subset of the pebble client used to drive the smf service.
type PebbleClient interface {
	SysInfo() (*client.SysInfo, error)
	ListFiles(opts *client.ListFilesOptions) ([]*client.FileInfo, error)
	Push(opts *client.PushOptions) error
	Pull(opts *client.PullOptions) error
	RemovePath(opts *client.RemovePathOptions) error
	AddLayer(opts *client.AddLayerOptions) error
	Restart(opts *client.ServiceOptions) (string, error)
	Replan(opts *client.ServiceOptions) (string, error)
	WaitChange(id string, opts *client.WaitChangeOptions) (*client.Change, error)
	Services(opts *client.ServicesOptions) ([]*client.ServiceInfo, error)
}

const (
	layerLabel        = "smf"
	defaultWaitChange = 30 * time.Second
)

// Pebble drives an SMF container managed by a pebble daemon.
type Pebble struct {
	client  PebbleClient
	timeout time.Duration
}

var _ Handle = &Pebble{}

// NewPebble returns a Handle backed by the pebble daemon behind socket.
func NewPebble(socket string) (*Pebble, error) {
	pebbleClient, err := client.New(&client.Config{Socket: socket})
	if err != nil {
		return nil, fmt.Errorf("pebble client: %w", err)
	}
	return NewPebbleWithClient(pebbleClient), nil
}

// NewPebbleWithClient wraps an existing client.
func NewPebbleWithClient(pebbleClient PebbleClient) *Pebble {
	return &Pebble{client: pebbleClient, timeout: defaultWaitChange}
}

func (p *Pebble) CanConnect(context.Context) bool {
	_, err := p.client.SysInfo()
	return err == nil
}

func (p *Pebble) StorageAttached(context.Context) bool {
	_, err := p.client.ListFiles(&client.ListFilesOptions{Path: core.ConfigDir, Itself: true})
	return err == nil
}

func (p *Pebble) AppliedChecksum(context.Context) (string, error) {
	var content bytes.Buffer
	if err := p.client.Pull(&client.PullOptions{Path: core.ChecksumFile, Target: &content}); err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", transient(fmt.Errorf("pull %s: %w", core.ChecksumFile, err))
	}
	return strings.TrimSpace(content.String()), nil
}

func (p *Pebble) Push(_ context.Context, rendered core.RenderedConfig) error {
	for _, filePath := range render.SortedPaths(rendered) {
		if err := p.push(filePath, rendered.Files[filePath]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pebble) push(filePath string, content []byte) error {
	permissions := os.FileMode(0o644)
	if path.Dir(filePath) == core.CertsDir {
		permissions = 0o600
	}
	err := p.client.Push(&client.PushOptions{
		Source:      bytes.NewReader(content),
		Path:        filePath,
		MakeDirs:    true,
		Permissions: permissions,
	})
	if err != nil {
		return transient(fmt.Errorf("push %s: %w", filePath, err))
	}
	return nil
}

func (p *Pebble) Restart(_ context.Context, rendered core.RenderedConfig) error {
	if err := p.addLayer(rendered); err != nil {
		return err
	}
	changeID, err := p.client.Restart(&client.ServiceOptions{Names: []string{core.ServiceName}})
	if err != nil {
		return transient(fmt.Errorf("restart %s: %w", core.ServiceName, err))
	}
	if err := p.wait(changeID); err != nil {
		return err
	}
	return p.push(core.ChecksumFile, []byte(rendered.Checksum))
}

func (p *Pebble) Replan(_ context.Context, rendered core.RenderedConfig) error {
	if err := p.addLayer(rendered); err != nil {
		return err
	}
	changeID, err := p.client.Replan(&client.ServiceOptions{})
	if err != nil {
		return transient(fmt.Errorf("replan: %w", err))
	}
	return p.wait(changeID)
}

func (p *Pebble) Running(context.Context) (bool, error) {
	services, err := p.client.Services(&client.ServicesOptions{Names: []string{core.ServiceName}})
	if err != nil {
		return false, transient(fmt.Errorf("list services: %w", err))
	}
	for _, service := range services {
		if service.Name == core.ServiceName && service.Current == client.StatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (p *Pebble) RemoveTLS(context.Context) error {
	for _, filePath := range []string{core.PrivateKeyFile, core.CertificateFile} {
		if err := p.client.RemovePath(&client.RemovePathOptions{Path: filePath}); err != nil && !isNotFound(err) {
			return fmt.Errorf("remove %s: %w", filePath, err)
		}
	}
	return nil
}

func (p *Pebble) addLayer(rendered core.RenderedConfig) error {
	if len(rendered.Layer) == 0 {
		return fmt.Errorf("rendered config has no pebble layer")
	}
	err := p.client.AddLayer(&client.AddLayerOptions{Combine: true, Label: layerLabel, LayerData: rendered.Layer})
	if err != nil {
		return transient(fmt.Errorf("add layer: %w", err))
	}
	return nil
}

func (p *Pebble) wait(changeID string) error {
	if changeID == "" {
		return nil
	}
	change, err := p.client.WaitChange(changeID, &client.WaitChangeOptions{Timeout: p.timeout})
	if err != nil {
		return transient(fmt.Errorf("wait change %s: %w", changeID, err))
	}
	if change.Err != "" {
		return fmt.Errorf("change %s failed: %s", changeID, change.Err)
	}
	return nil
}

func isNotFound(err error) bool {
	var pebbleErr *client.Error
	return errors.As(err, &pebbleErr) && pebbleErr.Kind == "not-found"
}
