// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package api

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeQuery_DropsOversizedAndEmptyKeys(t *testing.T) {
	q := url.Values{
		"utm_source":            {"newsletter"},
		"":                      {"ignored"},
		strings.Repeat("k", 65): {"ignored"},
		"utm_campaign":          {strings.Repeat("v", 300)},
	}

	out, err := sanitizeQuery(q)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"utm_source": "newsletter"}, out)
}

func TestSanitizeQuery_TooManyParamsRejected(t *testing.T) {
	q := make(url.Values, maxPublicQueryParams+1)
	for i := 0; i <= maxPublicQueryParams; i++ {
		q.Set(strings.Repeat("a", i+1), "v")
	}

	_, err := sanitizeQuery(q)
	require.Error(t, err)
}

func TestExtractUTMFromURL(t *testing.T) {
	source, medium, campaign := extractUTMFromURL("https://example.com/landing?utm_source=newsletter&utm_medium=email&utm_campaign=spring-sale")
	require.Equal(t, "newsletter", source)
	require.Equal(t, "email", medium)
	require.Equal(t, "spring-sale", campaign)
}

func TestExtractUTMFromURL_InvalidURLReturnsEmpty(t *testing.T) {
	source, medium, campaign := extractUTMFromURL("://not a url")
	require.Empty(t, source)
	require.Empty(t, medium)
	require.Empty(t, campaign)
}
