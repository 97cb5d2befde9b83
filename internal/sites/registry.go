package sites

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// Registry builds one crawler per configured site, keyed by site name.
func Registry(cfgs []SiteConfig, deps Deps) (map[string]crawler.SiteCrawler, error) {
	if len(cfgs) == 0 {
		return nil, errors.New("sites: no sites configured")
	}
	out := make(map[string]crawler.SiteCrawler, len(cfgs))
	for _, cfg := range cfgs {
		if _, dup := out[cfg.Name]; dup {
			return nil, fmt.Errorf("sites: duplicate site %q", cfg.Name)
		}
		c, err := New(cfg, deps)
		if err != nil {
			return nil, err
		}
		out[cfg.Name] = c
	}
	return out, nil
}
