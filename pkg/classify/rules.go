package classify

import "newsfeed/pkg/domain"

// DefaultRules is the built-in keyword table in priority order.
var DefaultRules = []Rule{
	{
		Category: domain.CategoryPolitics,
		Keywords: []string{
			"senate", "senator", "congress", "parliament", "legislation", "lawmakers",
			"election", "elections", "campaign trail", "president", "prime minister",
			"governor", "democrat", "democrats", "republican", "republicans", "ballot",
			"white house", "supreme court", "minister", "referendum", "policy bill",
		},
	},
	{
		Category: domain.CategoryBusiness,
		Keywords: []string{
			"stocks", "stock market", "shares", "earnings", "revenue", "profit",
			"economy", "inflation", "interest rates", "federal reserve", "ipo",
			"acquisition", "merger", "startup", "funding round", "investors", "wall street",
			"layoffs", "ceo",
		},
	},
	{
		Category: domain.CategoryTechnology,
		Keywords: []string{
			"software", "hardware", "smartphone", "iphone", "android", "artificial intelligence",
			"machine learning", "ai", "cybersecurity", "hackers", "data breach", "cloud computing",
			"semiconductor", "chip", "chips", "open source", "programming", "blockchain",
			"cryptocurrency", "bitcoin", "app", "apps", "silicon valley", "tech",
		},
	},
	{
		Category: domain.CategoryScience,
		Keywords: []string{
			"scientists", "researchers", "study finds", "nasa", "space", "astronomers",
			"telescope", "physics", "chemistry", "biology", "climate change", "fossil",
			"species", "genome", "quantum", "mars", "asteroid",
		},
	},
	{
		Category: domain.CategoryHealth,
		Keywords: []string{
			"health", "hospital", "vaccine", "vaccines", "virus", "pandemic", "disease",
			"cancer", "medical", "doctors", "patients", "fda", "mental health", "diet",
			"outbreak", "clinical trial",
		},
	},
	{
		Category: domain.CategorySports,
		Keywords: []string{
			"football", "soccer", "basketball", "baseball", "tennis", "olympics", "nba",
			"nfl", "mlb", "nhl", "world cup", "championship", "tournament", "coach",
			"playoffs", "league", "match", "goalkeeper", "quarterback",
		},
	},
	{
		Category: domain.CategoryEntertainment,
		Keywords: []string{
			"movie", "film", "box office", "hollywood", "celebrity", "album", "singer",
			"concert", "netflix", "television", "tv series", "actor", "actress", "oscars",
			"grammy", "streaming series",
		},
	},
	{
		Category: domain.CategoryWorld,
		Keywords: []string{
			"united nations", "embassy", "foreign ministry", "refugees", "ceasefire",
			"war", "troops", "diplomats", "border", "summit", "sanctions", "nato",
		},
	},
}
