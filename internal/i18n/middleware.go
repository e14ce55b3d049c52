package i18n

import "net/http"

// Middleware picks the request language from the lang query parameter or the
// Accept-Language header, falling back to def, and stores its localizer in the context.
func Middleware(def string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := r.URL.Query().Get("lang")
			if lang == "" {
				if accept := r.Header.Get("Accept-Language"); accept != "" {
					lang = Match(accept)
				}
			}
			loc := NewLocalizer(lang, def)
			w.Header().Set("Content-Language", firstNonEmpty(lang, def))
			next.ServeHTTP(w, r.WithContext(WithLocalizer(r.Context(), loc)))
		})
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
