// Package offers holds the catalogue of prospecting offers. Offers are
// descriptive context for a report and never influence the computed KPIs.
package offers

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AngelCh415/prospection-kpi/internal/models"
)

//go:embed offers.yaml
var builtin []byte

const ChannelLinkedIn = "LinkedIn"

// MinCustomTarget is the smallest contacts target accepted for a custom offer.
const MinCustomTarget = 100

type Offer struct {
	Name             string   `yaml:"name" json:"name"`
	ContactsTarget   int      `yaml:"contacts_target" json:"contacts_target"`
	Channels         []string `yaml:"channels" json:"channels"`
	LinkedInOptional bool     `yaml:"linkedin_optional" json:"linkedin_optional"`
	Custom           bool     `yaml:"custom" json:"custom"`
}

// DefaultChannels is the preselected channel list, LinkedIn included when optional.
func (o Offer) DefaultChannels() []string {
	out := append([]string(nil), o.Channels...)
	if o.LinkedInOptional {
		out = append(out, ChannelLinkedIn)
	}
	return out
}

type Catalog struct {
	offers []Offer
}

var ErrUnknownOffer = errors.New("unknown offer")

// Builtin returns the embedded catalogue.
func Builtin() (*Catalog, error) { return parse(builtin) }

// Load reads a catalogue file; an empty path returns the embedded one.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Builtin()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read offers: %w", err)
	}
	return parse(b)
}

func parse(b []byte) (*Catalog, error) {
	var list []Offer
	if err := yaml.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("parse offers: %w", err)
	}
	for i, o := range list {
		if strings.TrimSpace(o.Name) == "" {
			return nil, fmt.Errorf("offer %d: empty name", i)
		}
	}
	return &Catalog{offers: list}, nil
}

func (c *Catalog) All() []Offer { return append([]Offer(nil), c.offers...) }

// Get looks an offer up by name, case-insensitively.
func (c *Catalog) Get(name string) (Offer, error) {
	for _, o := range c.offers {
		if strings.EqualFold(o.Name, strings.TrimSpace(name)) {
			return o, nil
		}
	}
	return Offer{}, fmt.Errorf("%w: %q", ErrUnknownOffer, name)
}

// ContextRequest is what presentation supplies to describe a mission.
type ContextRequest struct {
	Client       string
	Offer        string
	CustomTarget int
	Channels     []string
	ReportType   string
	Cycle        string
}

// Context resolves a request into report metadata. Channels default to the
// offer's; a custom offer takes its target from the request.
func (c *Catalog) Context(req ContextRequest) (*models.ReportContext, error) {
	out := &models.ReportContext{
		Client:     req.Client,
		ReportType: req.ReportType,
		Cycle:      req.Cycle,
		Channels:   req.Channels,
	}
	if req.Offer == "" {
		return out, nil
	}
	o, err := c.Get(req.Offer)
	if err != nil {
		return nil, err
	}
	out.Offer = o.Name
	out.ContactsTarget = o.ContactsTarget
	if o.Custom {
		if req.CustomTarget < MinCustomTarget {
			return nil, fmt.Errorf("custom offer needs a contacts target of at least %d", MinCustomTarget)
		}
		out.ContactsTarget = req.CustomTarget
	}
	if len(out.Channels) == 0 {
		out.Channels = o.DefaultChannels()
	}
	return out, nil
}
