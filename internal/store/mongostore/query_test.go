package mongostore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
)

func keys(d bson.D) []string {
	var out []string
	for _, e := range d {
		out = append(out, e.Key)
	}
	return out
}

func lookup(t *testing.T, d bson.D, key string) any {
	t.Helper()
	for _, e := range d {
		if e.Key == key {
			return e.Value
		}
	}
	t.Fatalf("key %q not found in %v", key, d)
	return nil
}

func TestBuildUpdateLearnPolicy(t *testing.T) {
	st := &models.Statement{Text: "hi", InResponseTo: "hello", Tags: []string{"a"}, Conversation: "c"}
	u := buildUpdate(st, store.LearnPolicy, time.Now())

	assert.Equal(t, []string{"$setOnInsert", "$inc", "$addToSet", "$set"}, keys(u))

	onInsert := keys(lookup(t, u, "$setOnInsert").(bson.D))
	assert.Subset(t, onInsert, []string{"_id", "created_at", "conversation", "search_in_response_to", "vector", "vector_norm", "text", "in_response_to"})

	set := keys(lookup(t, u, "$set").(bson.D))
	assert.ElementsMatch(t, []string{"search_text", "persona", "last_updated_at"}, set)
	for _, k := range set {
		assert.NotContains(t, onInsert, k, "field %s in both $set and $setOnInsert", k)
	}
}

func TestBuildUpdateLatestPolicy(t *testing.T) {
	st := &models.Statement{Text: "reply", Conversation: "c", Tags: []string{"newResponse"}}
	u := buildUpdate(st, store.LatestPolicy, time.Now())

	assert.Equal(t, []string{"$setOnInsert", "$inc", "$set"}, keys(u))
	set := lookup(t, u, "$set").(bson.D)
	assert.Equal(t, []string{"newResponse"}, lookup(t, set, "tags"))
	assert.Equal(t, "reply", lookup(t, set, "text"))
	assert.Equal(t, []string{"_id"}, keys(lookup(t, u, "$setOnInsert").(bson.D)))
}

func TestMatchFilter(t *testing.T) {
	st := &models.Statement{Text: "t", InResponseTo: "r", Conversation: "c"}
	assert.Equal(t, bson.D{{Key: "text", Value: "t"}, {Key: "in_response_to", Value: "r"}}, matchFilter(st, store.LearnPolicy))
	assert.Equal(t, bson.D{{Key: "conversation", Value: "c"}}, matchFilter(st, store.LatestPolicy))

	st.ID = "abc"
	assert.Equal(t, bson.D{{Key: "_id", Value: "abc"}}, matchFilter(st, store.LearnPolicy))
}

func TestBuildPipeline(t *testing.T) {
	p, err := buildPipeline(store.Query{
		ExcludeBotPersona:  true,
		SearchTextContains: "NOUN:cat VERB:see",
		Tags:               []string{"pets"},
		Sort:               []store.SortField{{Field: "count", Desc: true}},
		GroupBy:            "text",
		PageSize:           5,
	})
	require.NoError(t, err)
	require.Len(t, p, 6)

	stages := make([]string, 0, len(p))
	for _, s := range p {
		stages = append(stages, s[0].Key)
	}
	assert.Equal(t, []string{"$match", "$sort", "$group", "$replaceRoot", "$sort", "$limit"}, stages)

	match := p[0][0].Value.(bson.D)
	conds := lookup(t, match, "$and").(bson.A)
	assert.Len(t, conds, 3)
	re := conds[2].(bson.D)[0].Value.(primitive.Regex)
	assert.Equal(t, "i", re.Options)
	assert.Equal(t, `\b(?:NOUN:cat|VERB:see)\b`, re.Pattern)

	assert.Equal(t, 5, p[5][0].Value)

	_, err = buildPipeline(store.Query{GroupBy: "bogus"})
	assert.Error(t, err)
}

func TestBuildMatchEmpty(t *testing.T) {
	assert.Equal(t, bson.D{}, buildMatch(store.Query{}))
}

func TestDocumentRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	st := &models.Statement{Text: "x", Tags: nil}
	d := newDocument(st, now)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, 1, d.Count)
	assert.Equal(t, now, d.CreatedAt)
	assert.Equal(t, []string{}, d.statement().Tags)
}
