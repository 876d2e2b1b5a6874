package telephony

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	callFileMode = 0o644
	dirMode      = 0o755
	tokenLength  = 8
)

// Extensions Asterisk can play from the sounds directory, in lookup order.
var audioExtensions = []string{".wav", ".alaw", ".gsm"}

type SpoolConfig struct {
	// SpoolDir is the directory Asterisk watches for call files.
	SpoolDir string
	// TempDir receives the call file before it is moved into SpoolDir, so Asterisk never
	// sees a half-written file.
	TempDir      string
	SoundsDir    string
	DefaultTrunk string
	Context      string
	CallerIDName string
	// StaticNumber dials its own extension instead of "s".
	StaticNumber string
}

// SpoolPlacer places calls by dropping Asterisk call files into the outgoing spool.
type SpoolPlacer struct {
	cfg      SpoolConfig
	newToken func() string
}

func NewSpoolPlacer(cfg SpoolConfig) (*SpoolPlacer, error) {
	if strings.TrimSpace(cfg.SpoolDir) == "" {
		return nil, fmt.Errorf("spool directory is required")
	}
	if strings.TrimSpace(cfg.SoundsDir) == "" {
		return nil, fmt.Errorf("sounds directory is required")
	}
	if strings.TrimSpace(cfg.TempDir) == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "autocaller-calls")
	}
	if strings.TrimSpace(cfg.DefaultTrunk) == "" {
		return nil, fmt.Errorf("default trunk is required")
	}
	if strings.TrimSpace(cfg.Context) == "" {
		cfg.Context = "outgoing"
	}
	if strings.TrimSpace(cfg.CallerIDName) == "" {
		cfg.CallerIDName = "AutoCaller"
	}

	return &SpoolPlacer{
		cfg:      cfg,
		newToken: newShortToken,
	}, nil
}

func (p *SpoolPlacer) Place(ctx context.Context, req CallRequest) (*Placement, error) {
	if p == nil {
		return nil, fmt.Errorf("spool placer is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	phone := strings.TrimSpace(req.Phone)
	audio := strings.TrimSpace(req.AudioAsset)

	if _, err := p.findAudio(audio); err != nil {
		return nil, err
	}

	for _, dir := range []string{p.cfg.TempDir, p.cfg.SpoolDir} {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return nil, &PlacementError{Reason: ReasonSpoolUnwritable, Message: "failed to create directory " + dir, Cause: err}
		}
	}

	token := p.newToken()
	name := fmt.Sprintf("%s-%s.call", phone, token)
	tempPath := filepath.Join(p.cfg.TempDir, name)
	finalPath := filepath.Join(p.cfg.SpoolDir, name)

	if _, err := os.Lstat(finalPath); err == nil {
		return nil, &PlacementError{Reason: ReasonTokenCollision, Message: "call file already spooled: " + name}
	}

	if err := writeExclusive(tempPath, []byte(p.callFile(req, phone, audio))); err != nil {
		return nil, err
	}

	if err := moveFile(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return nil, err
	}

	return &Placement{Token: token, Location: finalPath}, nil
}

func (p *SpoolPlacer) findAudio(asset string) (string, error) {
	for _, ext := range audioExtensions {
		path := filepath.Join(p.cfg.SoundsDir, asset+ext)
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", &PlacementError{
		Reason:  ReasonAudioMissing,
		Message: fmt.Sprintf("no audio file for %q in %s", asset, p.cfg.SoundsDir),
	}
}

func (p *SpoolPlacer) callFile(req CallRequest, phone, audio string) string {
	extension := "s"
	if p.cfg.StaticNumber != "" && phone == p.cfg.StaticNumber {
		extension = p.cfg.StaticNumber
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Channel: SIP/%s/%s\n", routing(req, p.cfg.DefaultTrunk), phone)
	fmt.Fprintf(&b, "CallerID: \"%s\" <%s>\n", p.cfg.CallerIDName, phone)
	b.WriteString("MaxRetries: 0\n")
	b.WriteString("RetryTime: 60\n")
	b.WriteString("WaitTime: 30\n")
	fmt.Fprintf(&b, "Context: %s\n", p.cfg.Context)
	fmt.Fprintf(&b, "Extension: %s\n", extension)
	b.WriteString("Priority: 1\n")
	fmt.Fprintf(&b, "Set: AUDIOFILE=%s\n", audio)
	return b.String()
}

func writeExclusive(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, callFileMode)
	if errors.Is(err, fs.ErrExist) {
		return &PlacementError{Reason: ReasonTokenCollision, Message: "call file already exists: " + path, Cause: err}
	}
	if err != nil {
		return &PlacementError{Reason: ReasonSpoolUnwritable, Message: "failed to create call file", Cause: err}
	}

	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return &PlacementError{Reason: ReasonSpoolUnwritable, Message: "failed to write call file", Cause: err}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return &PlacementError{Reason: ReasonSpoolUnwritable, Message: "failed to close call file", Cause: err}
	}
	// umask may have narrowed the mode.
	if err := os.Chmod(path, callFileMode); err != nil {
		_ = os.Remove(path)
		return &PlacementError{Reason: ReasonSpoolUnwritable, Message: "failed to chmod call file", Cause: err}
	}
	return nil
}

// moveFile renames src to dst, copying when they live on different file systems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return &PlacementError{Reason: ReasonSpoolUnwritable, Message: "failed to reopen call file", Cause: err}
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, callFileMode)
	if errors.Is(err, fs.ErrExist) {
		return &PlacementError{Reason: ReasonTokenCollision, Message: "call file already spooled: " + dst, Cause: err}
	}
	if err != nil {
		return &PlacementError{Reason: ReasonSpoolUnwritable, Message: "failed to create spooled call file", Cause: err}
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return &PlacementError{Reason: ReasonSpoolUnwritable, Message: "failed to copy call file", Cause: err}
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return &PlacementError{Reason: ReasonSpoolUnwritable, Message: "failed to close spooled call file", Cause: err}
	}

	_ = os.Remove(src)
	return nil
}

func newShortToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:tokenLength]
}
