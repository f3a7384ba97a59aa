package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Mountable is anything that exposes an http.Handler to mount.
type Mountable interface {
	Handle() http.Handler
}

// RouterOptions selects which surfaces to mount. Each is optional so a
// binary can serve only what it needs (the cron binary, for example,
// mounts nothing here and drives the jobs directly).
type RouterOptions struct {
	Webhook Mountable
	Cron    Mountable
	Admin   Mountable
}

// Router assembles the billing module router.
//
//	r := chi.NewRouter()
//	r.Mount("/", billing.Router(billing.RouterOptions{
//	    Webhook: webhookSvc,
//	    Cron:    cronSvc,
//	    Admin:   adminSvc,
//	}))
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	if opts.Webhook != nil {
		r.Mount("/webhooks", opts.Webhook.Handle())
	}
	if opts.Cron != nil {
		r.Mount("/cron", opts.Cron.Handle())
	}
	if opts.Admin != nil {
		r.Mount("/admin", opts.Admin.Handle())
	}
	return r
}
