// Package public implements the anonymous submission flow: a public form,
// an optional confirmation step with CAPTCHA, and a hash-keyed read-only
// view of the persisted record. Pending submissions are parked in the
// server-side session until confirmed.
package public

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"geoform-backend/internal/config"
	"geoform-backend/internal/metadata"
	"geoform-backend/internal/schema"
	"geoform-backend/internal/store"
	"geoform-backend/internal/widget"
)

type Controller struct {
	store     *store.Store
	reg       *metadata.Registry
	sessions  *session.Store
	captcha   *widget.CaptchaVerifier
	templates map[string]*schema.Template
}

func NewController(s *store.Store, reg *metadata.Registry, cfg config.CaptchaConfig) (*Controller, error) {
	ctl := &Controller{
		store:     s,
		reg:       reg,
		sessions:  session.New(),
		templates: make(map[string]*schema.Template),
	}
	if cfg.Enabled() {
		ctl.captcha = widget.NewCaptchaVerifier(cfg)
	}
	for _, e := range reg.EveryEntity() {
		tpl, err := schema.NewPublic(e, reg)
		if err != nil {
			return nil, err
		}
		ctl.templates[e.App+"/"+e.Name] = tpl
	}
	return ctl, nil
}

func (ctl *Controller) bind(c *fiber.Ctx, entity *metadata.Entity, id string) *schema.Bound {
	tpl := ctl.templates[entity.App+"/"+entity.Name]
	return tpl.Bind(schema.ReqContext{
		Ctx:   c.Context(),
		Store: ctl.store,
		ID:    id,
	})
}

// Pending submissions are serialized to JSON before they go into the
// session, so the session backend never has to deal with arbitrary types.
func submissionKey(id string) string {
	return "submission:" + id
}

func (ctl *Controller) storeSubmission(c *fiber.Ctx, id string, values map[string]any) error {
	sess, err := ctl.sessions.Get(c)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}
	sess.Set(submissionKey(id), string(raw))
	return sess.Save()
}

func (ctl *Controller) loadSubmission(c *fiber.Ctx, id string) (map[string]any, bool) {
	sess, err := ctl.sessions.Get(c)
	if err != nil {
		return nil, false
	}
	raw, ok := sess.Get(submissionKey(id)).(string)
	if !ok {
		return nil, false
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, false
	}
	return values, true
}

func (ctl *Controller) dropSubmission(c *fiber.Ctx, id string) {
	sess, err := ctl.sessions.Get(c)
	if err != nil {
		return
	}
	sess.Delete(submissionKey(id))
	_ = sess.Save()
}
