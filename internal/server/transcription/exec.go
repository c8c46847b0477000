package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/dmitrijs2005/voicenotes/internal/filex"
	"github.com/mattn/go-shellwords"
)

// ExecClient runs a local speech-to-text command. The command receives
// "--audio <path>" plus optional "--model" and "--language" arguments and
// must print a JSON object with at least a "text" field on stdout.
type ExecClient struct {
	cmd   []string
	model string
}

func NewExecClient(command, model string) (*ExecClient, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse transcriber command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("transcriber command is empty")
	}
	return &ExecClient{cmd: args, model: model}, nil
}

func (e *ExecClient) Transcribe(ctx context.Context, audioFilePath, language string) (*Result, error) {
	ok, err := filex.Exists(audioFilePath)
	if err != nil || !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrFileNotFound, audioFilePath)
	}

	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--audio", audioFilePath)
	if e.model != "" {
		args = append(args, "--model", e.model)
	}
	if language != "" {
		args = append(args, "--language", language)
	}

	command := exec.CommandContext(ctx, e.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("%w: transcriber command failed: %w: %s",
			common.ErrUpstream, err, strings.TrimSpace(stderr.String()))
	}

	// Only the first JSON value is read; trailing output is ignored.
	var result Result
	if err := json.NewDecoder(&stdout).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode transcriber output: %w", common.ErrUpstream, err)
	}
	return &result, nil
}
