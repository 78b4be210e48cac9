package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/m3rciful/kinobot/internal/chat"
	"github.com/m3rciful/kinobot/internal/registry"
)

// Kind names an admin workflow.
type Kind string

const (
	AddMovie      Kind = "add_movie"
	DeleteMovie   Kind = "delete_movie"
	EditMovie     Kind = "edit_movie"
	AddAdmin      Kind = "add_admin"
	DeleteAdmin   Kind = "delete_admin"
	AddChannel    Kind = "add_channel"
	DeleteChannel Kind = "delete_channel"
)

const (
	fieldCode    = "code"
	fieldPayload = "payload"
	fieldAdminID = "admin_id"
	fieldChannel = "channel"
)

// Registry is the subset of the registry the workflows commit through.
type Registry interface {
	AutoCode() bool
	HasMovie(code string) bool
	AddMovie(ctx context.Context, m registry.Movie) (registry.Movie, error)
	UpdateMoviePayload(ctx context.Context, code, payload string, media registry.MediaType, caption string) error
	DeleteMovie(ctx context.Context, code string) (bool, error)
	AddAdmin(ctx context.Context, id int64) error
	DeleteAdmin(ctx context.Context, id int64) (bool, error)
	AddChannel(ctx context.Context, id string) error
	DeleteChannel(ctx context.Context, id string) (bool, error)
}

// Draft holds the values collected so far.
type Draft struct {
	Code    string
	Payload string
	Media   registry.MediaType
	Caption string
	AdminID int64
	Channel string
}

type step struct {
	field  string
	prompt string
	// accept parses the input into d. It must leave d untouched on error.
	accept func(d *Draft, in chat.Input) error
	// check runs registry lookups after accept succeeded.
	check func(reg Registry, d Draft) error
	// skip reports whether the step is bypassed for this deployment.
	skip func(reg Registry) bool
}

type workflow struct {
	kind   Kind
	steps  []step
	commit func(ctx context.Context, reg Registry, d Draft) (string, error)
}

var codeStep = step{
	field:  fieldCode,
	prompt: "Send the movie code:",
	accept: func(d *Draft, in chat.Input) error {
		text, ok := in.(chat.TextInput)
		if !ok {
			return invalid(fieldCode, "send the code as text")
		}
		code, err := parseMovieCode(text.Text)
		if err != nil {
			return err
		}
		d.Code = code
		return nil
	},
}

var payloadStep = step{
	field:  fieldPayload,
	prompt: "Send the movie link or attach the video:",
	accept: func(d *Draft, in chat.Input) error {
		switch v := in.(type) {
		case chat.MediaInput:
			if v.Media.Token == "" {
				return invalid(fieldPayload, "the attachment has no file id")
			}
			d.Payload = v.Media.Token
			d.Media = mediaType(v.Media.Kind)
			d.Caption = v.Caption
		case chat.TextInput:
			link, err := parseLink(v.Text)
			if err != nil {
				return err
			}
			d.Payload = link
			d.Media = registry.MediaNone
			d.Caption = ""
		default:
			return invalid(fieldPayload, "send a link or attach the video")
		}
		return nil
	},
}

func mediaType(k chat.MediaKind) registry.MediaType {
	if k == chat.MediaDocument {
		return registry.MediaDocument
	}
	return registry.MediaVideo
}

func textStep(field, prompt string, parse func(d *Draft, text string) error) step {
	return step{
		field:  field,
		prompt: prompt,
		accept: func(d *Draft, in chat.Input) error {
			text, ok := in.(chat.TextInput)
			if !ok {
				return invalid(field, "send it as text")
			}
			return parse(d, text.Text)
		},
	}
}

func adminStep(prompt string) step {
	return textStep(fieldAdminID, prompt, func(d *Draft, text string) error {
		id, err := parseUserID(text)
		if err != nil {
			return err
		}
		d.AdminID = id
		return nil
	})
}

func channelStep(prompt string) step {
	return textStep(fieldChannel, prompt, func(d *Draft, text string) error {
		ch, err := parseChannel(text)
		if err != nil {
			return err
		}
		d.Channel = ch
		return nil
	})
}

func withPrompt(s step, prompt string) step {
	s.prompt = prompt
	return s
}

var workflows = map[Kind]workflow{
	AddMovie: {
		kind: AddMovie,
		steps: []step{
			func() step {
				s := withPrompt(codeStep, "Send the new movie code:")
				s.check = func(reg Registry, d Draft) error {
					if reg.HasMovie(d.Code) {
						return invalid(fieldCode, fmt.Sprintf("code %s is already taken, send another one", d.Code))
					}
					return nil
				}
				s.skip = func(reg Registry) bool { return reg.AutoCode() }
				return s
			}(),
			payloadStep,
		},
		commit: func(ctx context.Context, reg Registry, d Draft) (string, error) {
			m, err := reg.AddMovie(ctx, registry.Movie{Code: d.Code, Payload: d.Payload, MediaType: d.Media, Caption: d.Caption})
			if err != nil {
				return "", err
			}
			return "✅ Movie added: " + m.Code, nil
		},
	},
	DeleteMovie: {
		kind:  DeleteMovie,
		steps: []step{withPrompt(codeStep, "Send the code of the movie to delete:")},
		commit: func(ctx context.Context, reg Registry, d Draft) (string, error) {
			removed, err := reg.DeleteMovie(ctx, d.Code)
			if err != nil {
				return "", err
			}
			if !removed {
				return "", registry.ErrNotFound
			}
			return "✅ Movie deleted: " + d.Code, nil
		},
	},
	EditMovie: {
		kind: EditMovie,
		steps: []step{
			func() step {
				s := withPrompt(codeStep, "Send the code of the movie to edit:")
				s.check = func(reg Registry, d Draft) error {
					if !reg.HasMovie(d.Code) {
						return registry.ErrNotFound
					}
					return nil
				}
				return s
			}(),
			withPrompt(payloadStep, "Send the new link or attach the video:"),
		},
		commit: func(ctx context.Context, reg Registry, d Draft) (string, error) {
			if err := reg.UpdateMoviePayload(ctx, d.Code, d.Payload, d.Media, d.Caption); err != nil {
				return "", err
			}
			return "✅ Movie updated: " + d.Code, nil
		},
	},
	AddAdmin: {
		kind:  AddAdmin,
		steps: []step{adminStep("Send the Telegram id of the new admin:")},
		commit: func(ctx context.Context, reg Registry, d Draft) (string, error) {
			if err := reg.AddAdmin(ctx, d.AdminID); err != nil {
				return "", err
			}
			return fmt.Sprintf("✅ Admin added: %d", d.AdminID), nil
		},
	},
	DeleteAdmin: {
		kind:  DeleteAdmin,
		steps: []step{adminStep("Send the Telegram id of the admin to remove:")},
		commit: func(ctx context.Context, reg Registry, d Draft) (string, error) {
			removed, err := reg.DeleteAdmin(ctx, d.AdminID)
			if err != nil {
				return "", err
			}
			if !removed {
				return "", registry.ErrNotFound
			}
			return fmt.Sprintf("✅ Admin removed: %d", d.AdminID), nil
		},
	},
	AddChannel: {
		kind:  AddChannel,
		steps: []step{channelStep("Send the channel as @name, a t.me link or numeric chat id:")},
		commit: func(ctx context.Context, reg Registry, d Draft) (string, error) {
			if err := reg.AddChannel(ctx, d.Channel); err != nil {
				return "", err
			}
			return "✅ Channel added: " + d.Channel, nil
		},
	},
	DeleteChannel: {
		kind:  DeleteChannel,
		steps: []step{channelStep("Send the channel to remove:")},
		commit: func(ctx context.Context, reg Registry, d Draft) (string, error) {
			removed, err := reg.DeleteChannel(ctx, d.Channel)
			if err != nil {
				return "", err
			}
			if !removed {
				return "", registry.ErrNotFound
			}
			return "✅ Channel removed: " + d.Channel, nil
		},
	},
}

// Kinds lists every known workflow.
func Kinds() []Kind {
	return []Kind{AddMovie, DeleteMovie, EditMovie, AddAdmin, DeleteAdmin, AddChannel, DeleteChannel}
}

// rejection turns a domain error into the message shown to the admin.
// The bool is false for errors that are not domain rejections.
func rejection(kind Kind, d Draft, err error) (string, bool) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		switch kind {
		case AddAdmin, DeleteAdmin:
			return fmt.Sprintf("❌ %d is not an admin.", d.AdminID), true
		case AddChannel, DeleteChannel:
			return fmt.Sprintf("❌ %s is not in the channel list.", d.Channel), true
		}
		return fmt.Sprintf("❌ No movie with code %s.", d.Code), true
	case errors.Is(err, registry.ErrAlreadyExists):
		switch kind {
		case AddAdmin:
			return fmt.Sprintf("%d is already an admin.", d.AdminID), true
		case AddChannel:
			return fmt.Sprintf("%s is already in the channel list.", d.Channel), true
		}
		return fmt.Sprintf("Code %s is already taken.", d.Code), true
	case errors.Is(err, registry.ErrLastAdmin):
		return "❌ The last admin cannot be removed.", true
	case errors.Is(err, registry.ErrInvalid):
		return "❌ That value cannot be stored.", true
	}
	return "", false
}
