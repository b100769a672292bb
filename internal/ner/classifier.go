package ner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"rmqmeta/internal/config"
	"rmqmeta/internal/entity"
	"rmqmeta/internal/logging"
	"rmqmeta/internal/services"
)

var commandContext = exec.CommandContext

const classifierClass = "edu.stanford.nlp.ie.crf.CRFClassifier"

// Classifier runs the Stanford CRF classifier over whitespace separated
// tokens. The jar, model and java binary are checked once on first use and
// the outcome is shared by every caller.
type Classifier struct {
	cfg    config.NER
	tmpDir string
	logger *slog.Logger

	once    sync.Once
	initErr error
	codec   encoding.Encoding
}

// NewClassifier builds a classifier handle. No files are touched until the
// first call to Ready or Classify.
func NewClassifier(cfg config.NER, tmpDir string, logger *slog.Logger) *Classifier {
	return &Classifier{
		cfg:    cfg,
		tmpDir: tmpDir,
		logger: logging.NewComponentLogger(logger, "ner"),
	}
}

// Ready validates the classifier resources, once.
func (c *Classifier) Ready() error {
	c.once.Do(func() {
		c.initErr = c.init()
		if c.initErr != nil {
			c.logger.Error("entity classifier unavailable",
				logging.Error(c.initErr),
				logging.String(logging.FieldEventType, "ner_unavailable"),
				logging.String(logging.FieldErrorHint, "check ner.stanford_jar, ner.lang_module and java_binary"),
			)
			return
		}
		c.logger.Info("entity classifier ready",
			logging.String("model", c.cfg.LangModule),
			logging.Strings("token_types", c.cfg.TokenTypes),
		)
	})
	return c.initErr
}

func (c *Classifier) init() error {
	if _, err := exec.LookPath(c.cfg.JavaBinary); err != nil {
		return services.Wrap(services.ErrConfiguration, "ner", "locate java", c.cfg.JavaBinary, err)
	}
	for label, path := range map[string]string{"stanford_jar": c.cfg.StanfordJar, "lang_module": c.cfg.LangModule} {
		file, err := os.Open(path)
		if err != nil {
			return services.Wrap(services.ErrConfiguration, "ner", "open "+label, path, err)
		}
		file.Close()
	}
	codec, err := lookupEncoding(c.cfg.Encoding)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "ner", "encoding", c.cfg.Encoding, err)
	}
	c.codec = codec
	return nil
}

// Classify labels tokens. Tokens must not contain whitespace.
func (c *Classifier) Classify(ctx context.Context, tokens []string) ([]entity.Token, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	if err := c.Ready(); err != nil {
		return nil, err
	}

	input, err := c.encode(strings.Join(tokens, " "))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "ner", "encode input", "", err)
	}
	textFile, err := os.CreateTemp(c.tmpDir, "ner-*.txt")
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "ner", "create input file", c.tmpDir, err)
	}
	defer os.Remove(textFile.Name())
	if _, err := textFile.Write(input); err != nil {
		textFile.Close()
		return nil, services.Wrap(services.ErrExternalTool, "ner", "write input file", textFile.Name(), err)
	}
	if err := textFile.Close(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "ner", "write input file", textFile.Name(), err)
	}

	if c.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := commandContext(ctx, c.cfg.JavaBinary, c.args(textFile.Name())...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "ner", "classify", "", ctx.Err())
		}
		return nil, services.Wrap(services.ErrExternalTool, "ner", "classify", lastLine(stderr.String()), err)
	}

	output, err := c.decode(stdout.Bytes())
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "ner", "decode output", "", err)
	}
	return ParseSlashTags(output), nil
}

func (c *Classifier) args(textFile string) []string {
	return []string{
		"-mx" + c.cfg.Heap,
		"-cp", c.cfg.StanfordJar,
		classifierClass,
		"-loadClassifier", c.cfg.LangModule,
		"-textFile", textFile,
		"-outputFormat", "slashTags",
		"-tokenizerFactory", "edu.stanford.nlp.process.WhitespaceTokenizer",
		"-tokenizerOptions", "tokenizeNLs=false",
		"-encoding", c.cfg.Encoding,
	}
}

func (c *Classifier) encode(text string) ([]byte, error) {
	if c.codec == nil {
		return []byte(text), nil
	}
	return encoding.ReplaceUnsupported(c.codec.NewEncoder()).Bytes([]byte(text))
}

func (c *Classifier) decode(raw []byte) (string, error) {
	if c.codec == nil {
		return strings.ToValidUTF8(string(raw), "�"), nil
	}
	out, err := c.codec.NewDecoder().Bytes(raw)
	return string(out), err
}

// ParseSlashTags reads classifier output of the form word/LABEL separated by
// whitespace. The label follows the last slash; a word without one is O.
func ParseSlashTags(output string) []entity.Token {
	fields := strings.Fields(output)
	tokens := make([]entity.Token, 0, len(fields))
	for _, field := range fields {
		idx := strings.LastIndexByte(field, '/')
		if idx <= 0 || idx == len(field)-1 {
			tokens = append(tokens, entity.Token{Text: field, Label: entity.Outside})
			continue
		}
		tokens = append(tokens, entity.Token{Text: field[:idx], Label: field[idx+1:]})
	}
	return tokens
}

// lookupEncoding returns nil for UTF-8, which needs no transcoding.
func lookupEncoding(label string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q", label)
	}
	return enc, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
