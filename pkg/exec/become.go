package exec

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"os/user"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/rashlabs/rash/pkg/engine"
)

// WorkerCommand is the hidden subcommand the engine re-executes itself
// with to run a become worker. A bare fork without exec is unsafe under
// the Go runtime, so privilege switching happens in a fresh child process
// before any task code runs.
const WorkerCommand = "become-worker"

// Credentials are the resolved target ids for a become switch.
type Credentials struct {
	UID uint32
	GID uint32
}

// LookupUser resolves a become target, by name first, then as a numeric
// uid.
func LookupUser(name string) (*Credentials, error) {
	u, err := user.Lookup(name)
	if err != nil {
		if _, convErr := strconv.Atoi(name); convErr == nil {
			u, err = user.LookupId(name)
		}
	}
	if err != nil || u == nil {
		return nil, engine.NewErrorf(engine.KindBecomeFailed, "user %q not found", name)
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, engine.NewErrorf(engine.KindBecomeFailed, "user %q has non-numeric uid %q", name, u.Uid)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, engine.NewErrorf(engine.KindBecomeFailed, "user %q has non-numeric gid %q", name, u.Gid)
	}
	return &Credentials{UID: uint32(uid), GID: uint32(gid)}, nil
}

// CurrentUID returns the engine's effective uid.
func CurrentUID() uint32 {
	return uint32(os.Geteuid())
}

// Invoke runs a module invocation in a become worker: the engine re-executes
// its own binary, ships the request over stdin, and reads the single
// response from stdout. The worker's stderr is inherited so its diagnostics
// reach the operator.
func Invoke(req *WorkerRequest) (*engine.ModuleResult, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, engine.WrapError(engine.KindBecomeFailed, "cannot locate own binary", err)
	}

	cmd := osexec.Command(exe, WorkerCommand)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, engine.WrapError(engine.KindBecomeFailed, "cannot open worker stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, engine.WrapError(engine.KindBecomeFailed, "cannot open worker stdout", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, engine.WrapError(engine.KindBecomeFailed, "cannot start worker", err)
	}

	log.Debug().Str("module", req.Module).Str("user", req.User).
		Str("request_id", req.ID).Msg("dispatching become worker")

	if err := NewEncoder(stdin).Encode(MessageTypeRequest, req.ID, req); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, engine.WrapError(engine.KindBecomeFailed, "cannot send request", err)
	}
	_ = stdin.Close()

	msg, decodeErr := NewDecoder(stdout).Decode()
	waitErr := cmd.Wait()

	if decodeErr != nil {
		if decodeErr == io.EOF && waitErr != nil {
			return nil, engine.WrapError(engine.KindBecomeFailed, "worker died before answering", waitErr)
		}
		return nil, engine.WrapError(engine.KindBecomeFailed, "cannot read worker response", decodeErr)
	}
	if msg.ID != req.ID {
		return nil, engine.NewErrorf(engine.KindBecomeFailed,
			"worker answered request %s, expected %s", msg.ID, req.ID)
	}

	switch msg.Type {
	case MessageTypeResult:
		var result engine.ModuleResult
		if err := unmarshalPayload(msg, &result); err != nil {
			return nil, err
		}
		return &result, nil
	case MessageTypeError:
		var werr WorkerError
		if err := unmarshalPayload(msg, &werr); err != nil {
			return nil, err
		}
		return nil, engine.NewError(werr.Kind, werr.Message)
	default:
		return nil, engine.NewErrorf(engine.KindBecomeFailed,
			"unexpected worker message %s", msg.Type)
	}
}

func unmarshalPayload(msg *Message, out interface{}) error {
	if err := json.Unmarshal(msg.Data, out); err != nil {
		return engine.WrapError(engine.KindBecomeFailed,
			fmt.Sprintf("malformed %s payload", msg.Type), err)
	}
	return nil
}

// ModuleRunner executes the module body on the worker side, after the
// privilege switch.
type ModuleRunner func(req *WorkerRequest) (*engine.ModuleResult, error)

// ServeWorker is the worker side of the protocol: read the one request,
// switch credentials, run the module, answer, exit. Errors are answered
// over the protocol whenever possible so the parent sees the taxonomy kind
// instead of a bare exit code.
func ServeWorker(in io.Reader, out io.Writer, run ModuleRunner) error {
	enc := NewEncoder(out)

	msg, err := NewDecoder(in).Decode()
	if err != nil {
		return fmt.Errorf("cannot read request: %w", err)
	}
	if msg.Type != MessageTypeRequest {
		return fmt.Errorf("unexpected message %s", msg.Type)
	}
	var req WorkerRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return fmt.Errorf("malformed request: %w", err)
	}

	answerError := func(kind engine.Kind, message string) error {
		return enc.Encode(MessageTypeError, req.ID, &WorkerError{Kind: kind, Message: message})
	}

	creds, err := LookupUser(req.User)
	if err != nil {
		return answerError(engine.KindOf(err), err.Error())
	}
	if err := switchCredentials(creds); err != nil {
		return answerError(engine.KindBecomeFailed, err.Error())
	}

	result, err := run(&req)
	if err != nil {
		return answerError(engine.KindOf(err), err.Error())
	}
	return enc.Encode(MessageTypeResult, req.ID, result)
}

// switchCredentials drops to the target ids, gid first. Requires
// CAP_SETUID/CAP_SETGID (or running as root).
func switchCredentials(creds *Credentials) error {
	if uint32(os.Geteuid()) == creds.UID && uint32(os.Getegid()) == creds.GID {
		return nil
	}
	if err := unix.Setresgid(int(creds.GID), int(creds.GID), int(creds.GID)); err != nil {
		return fmt.Errorf("setresgid %d: %w", creds.GID, err)
	}
	if err := unix.Setresuid(int(creds.UID), int(creds.UID), int(creds.UID)); err != nil {
		return fmt.Errorf("setresuid %d: %w", creds.UID, err)
	}
	return nil
}
