package pinpoint

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/pinpoint"
	"github.com/aws/aws-sdk-go-v2/service/pinpoint/types"
	"github.com/trackfit/trackfit/pkg/models"
)

const (
	providerID  = "pinpoint"
	channelName = "E-mail"
	maxBodyLen  = 100 * 1024
	charset     = "UTF-8"
)

// Pinpoint delivers OTP e-mails over AWS Pinpoint's e-mail channel.
type Pinpoint struct {
	cfg Config
	p   *pinpoint.Client
}

type Config struct {
	ApplicationID string        `json:"application_id"`
	AccessKey     string        `json:"access_key"`
	SecretKey     string        `json:"secret_key"`
	Region        string        `json:"region"`
	FromEmail     string        `json:"from_email"`
	Timeout       time.Duration `json:"timeout"`
}

// New returns an instance of the Pinpoint e-mail provider.
func New(cfg Config) (*Pinpoint, error) {
	if cfg.ApplicationID == "" {
		return nil, errors.New("invalid application_id")
	}
	if cfg.Region == "" {
		return nil, errors.New("invalid region")
	}
	if cfg.AccessKey == "" {
		return nil, errors.New("invalid access_key")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("invalid secret_key")
	}
	if cfg.FromEmail == "" {
		return nil, errors.New("invalid from_email")
	}
	if cfg.Timeout.Seconds() < 1 {
		cfg.Timeout = time.Second * 5
	}

	cfgAws, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, err
	}

	return &Pinpoint{cfg: cfg, p: pinpoint.NewFromConfig(cfgAws)}, nil
}

// ID returns the Provider's ID.
func (p *Pinpoint) ID() string {
	return providerID
}

// ChannelName returns the Provider's name.
func (p *Pinpoint) ChannelName() string {
	return channelName
}

// ValidateAddress "validates" an e-mail address.
func (p *Pinpoint) ValidateAddress(to string) error {
	return models.ValidateEmail(to)
}

// Push sends the OTP e-mail.
func (p *Pinpoint) Push(msg models.Message, subject string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	_, err := p.p.SendMessages(ctx, p.makeInput(msg, subject, body))
	return err
}

// MaxBodyLen returns the max permitted body size.
func (p *Pinpoint) MaxBodyLen() int {
	return maxBodyLen
}

func (p *Pinpoint) makeInput(msg models.Message, subject string, body []byte) *pinpoint.SendMessagesInput {
	return &pinpoint.SendMessagesInput{
		ApplicationId: aws.String(p.cfg.ApplicationID),
		MessageRequest: &types.MessageRequest{
			Addresses: map[string]types.AddressConfiguration{
				msg.To: {
					ChannelType: types.ChannelTypeEmail,
				},
			},
			MessageConfiguration: &types.DirectMessageConfiguration{
				EmailMessage: &types.EmailMessage{
					FromAddress: aws.String(p.cfg.FromEmail),
					SimpleEmail: &types.SimpleEmail{
						Subject: &types.SimpleEmailPart{
							Charset: aws.String(charset),
							Data:    aws.String(subject),
						},
						HtmlPart: &types.SimpleEmailPart{
							Charset: aws.String(charset),
							Data:    aws.String(string(body)),
						},
					},
				},
			},
		},
	}
}
