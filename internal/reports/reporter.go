package reports

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Reporter delivers a finished report.
type Reporter interface {
	Send(ctx context.Context, stats Stats, artifacts []Artifact) error
}

// SESReporter emails the report through AWS SES. Attachments require
// the raw-message API, so the MIME envelope is assembled by hand.
type SESReporter struct {
	client *ses.Client
	from   string
	to     []string
	logger *log.Logger
}

func NewSESReporter(ctx context.Context, region, from string, to []string, logger *log.Logger) (*SESReporter, error) {
	if from == "" || len(to) == 0 {
		return nil, fmt.Errorf("report email requires a source and at least one destination address")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &SESReporter{
		client: ses.NewFromConfig(cfg),
		from:   from,
		to:     to,
		logger: logger,
	}, nil
}

func (r *SESReporter) Send(ctx context.Context, stats Stats, artifacts []Artifact) error {
	raw, err := buildRawMessage(r.from, r.to, stats, artifacts)
	if err != nil {
		return err
	}

	out, err := r.client.SendRawEmail(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(r.from),
		Destinations: r.to,
		RawMessage:   &types.RawMessage{Data: raw},
	})
	if err != nil {
		return fmt.Errorf("send report email: %w", err)
	}
	r.logger.Printf("report email for %s sent (message id %s)",
		stats.PeriodStart.Format("2006-Jan"), aws.ToString(out.MessageId))
	return nil
}

// buildRawMessage assembles the multipart/mixed message: plain-text
// body first, then each artifact as a text/csv attachment.
func buildRawMessage(from string, to []string, stats Stats, artifacts []Artifact) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ","))
	fmt.Fprintf(&buf, "Subject: %s\r\n", stats.Subject())
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	body, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("build report message: %w", err)
	}
	if _, err := body.Write([]byte(stats.Summary())); err != nil {
		return nil, fmt.Errorf("build report message: %w", err)
	}

	for _, a := range artifacts {
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":        {"text/csv; charset=utf-8"},
			"Content-Disposition": {fmt.Sprintf("attachment; filename=%q", a.Name)},
		})
		if err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Name, err)
		}
		if _, err := part.Write(a.Data); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Name, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build report message: %w", err)
	}
	return buf.Bytes(), nil
}

// LogReporter writes the report summary to the process log. Used when
// no email delivery is configured.
type LogReporter struct {
	Logger *log.Logger
}

func (r LogReporter) Send(_ context.Context, stats Stats, artifacts []Artifact) error {
	names := make([]string, len(artifacts))
	for i, a := range artifacts {
		names[i] = a.Name
	}
	r.Logger.Printf("report for %s: %d validations, %d failures, %d admin activations (artifacts: %s)",
		stats.PeriodStart.Format("2006-Jan"), stats.Validations, stats.Failures,
		stats.AdminActivations, strings.Join(names, ", "))
	return nil
}
