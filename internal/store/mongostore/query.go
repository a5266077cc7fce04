package mongostore

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
)

// regex turns a store words pattern into a BSON regex. The inline (?i)
// flag is moved into the options field.
func regex(text string) (primitive.Regex, bool) {
	p := store.WordsPattern(text)
	if p == "" {
		return primitive.Regex{}, false
	}
	return primitive.Regex{Pattern: strings.TrimPrefix(p, "(?i)"), Options: "i"}, true
}

// buildMatch returns the $match stage body. Each predicate is its own
// clause under $and so two predicates on one field never collide.
func buildMatch(q store.Query) bson.D {
	var conds bson.A
	add := func(field string, v any) {
		conds = append(conds, bson.D{{Key: field, Value: v}})
	}
	eq := func(field, v string) {
		if v != "" {
			add(field, v)
		}
	}
	contains := func(field, text string) {
		if re, ok := regex(text); ok {
			add(field, re)
		}
	}

	eq("text", q.Text)
	eq("in_response_to", q.InResponseTo)
	eq("conversation", q.Conversation)
	eq("persona", q.Persona)
	if q.ExcludeBotPersona {
		add("persona", bson.D{{Key: "$not", Value: primitive.Regex{Pattern: "^" + models.BotPersonaPrefix}}})
	}
	if len(q.Tags) > 0 {
		add("tags", bson.D{{Key: "$in", Value: q.Tags}})
	}
	if len(q.ExcludeTags) > 0 {
		add("tags", bson.D{{Key: "$nin", Value: q.ExcludeTags}})
	}
	if len(q.ExcludeText) > 0 {
		add("text", bson.D{{Key: "$nin", Value: q.ExcludeText}})
	}
	if re, ok := regex(strings.Join(q.ExcludeTextWords, " ")); ok {
		add("text", bson.D{{Key: "$not", Value: re}})
	}
	contains("text", q.TextContains)
	contains("search_text", q.SearchTextContains)
	contains("in_response_to", q.InResponseToContains)
	contains("search_in_response_to", q.SearchInResponseToContains)

	if len(conds) == 0 {
		return bson.D{}
	}
	return bson.D{{Key: "$and", Value: conds}}
}

func buildSort(q store.Query, prefix string) bson.D {
	sort := bson.D{}
	for _, f := range q.Sort {
		dir := 1
		if f.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: prefix + f.Field, Value: dir})
	}
	return append(sort, bson.E{Key: prefix + "_id", Value: 1})
}

// buildPipeline mirrors the SQLite filter: match, sort, keep the first
// document per group, restore the order, cap at the page size.
func buildPipeline(q store.Query) (mongo.Pipeline, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	p := mongo.Pipeline{
		{{Key: "$match", Value: buildMatch(q)}},
		{{Key: "$sort", Value: buildSort(q, "")}},
	}
	if q.GroupBy != "" {
		p = append(p,
			bson.D{{Key: "$group", Value: bson.D{
				{Key: "_id", Value: "$" + q.GroupBy},
				{Key: "doc", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
			}}},
			bson.D{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$doc"}}}},
			bson.D{{Key: "$sort", Value: buildSort(q, "")}},
		)
	}
	p = append(p, bson.D{{Key: "$limit", Value: q.Limit()}})
	return p, nil
}

// matchFilter locates the record a merge applies to.
func matchFilter(st *models.Statement, p store.MergePolicy) bson.D {
	if st.ID != "" && p.Target == store.CollectionStatements {
		return bson.D{{Key: "_id", Value: st.ID}}
	}
	f := bson.D{}
	if p.MatchText {
		f = append(f, bson.E{Key: "text", Value: st.Text})
	}
	if p.MatchInResponseTo {
		f = append(f, bson.E{Key: "in_response_to", Value: st.InResponseTo})
	}
	if p.MatchConversation {
		f = append(f, bson.E{Key: "conversation", Value: st.Conversation})
	}
	return f
}

// buildUpdate produces the merge update document: write-once fields go
// into $setOnInsert, count is incremented, tags are unioned with
// $addToSet or replaced with $set, and the rest is $set.
func buildUpdate(st *models.Statement, p store.MergePolicy, now time.Time) bson.D {
	d := newDocument(st, now)
	tags := d.Tags

	setOnInsert := bson.D{{Key: "_id", Value: d.ID}}
	set := bson.D{
		{Key: "search_text", Value: d.SearchText},
		{Key: "persona", Value: d.Persona},
		{Key: "last_updated_at", Value: now},
	}

	writeOnce := bson.D{
		{Key: "created_at", Value: d.CreatedAt},
		{Key: "conversation", Value: d.Conversation},
		{Key: "search_in_response_to", Value: d.SearchInResponseTo},
		{Key: "vector", Value: d.Vector},
		{Key: "vector_norm", Value: d.VectorNorm},
	}
	if p.ProtectWriteOnce {
		setOnInsert = append(setOnInsert, writeOnce...)
	} else {
		set = append(set, writeOnce...)
	}

	// Fields that are part of the match are populated from the filter on
	// insert; the others need an explicit value.
	if p.ProtectWriteOnce || p.MatchText {
		setOnInsert = append(setOnInsert, bson.E{Key: "text", Value: d.Text})
	} else {
		set = append(set, bson.E{Key: "text", Value: d.Text})
	}
	if p.MatchInResponseTo {
		setOnInsert = append(setOnInsert, bson.E{Key: "in_response_to", Value: d.InResponseTo})
	} else {
		set = append(set, bson.E{Key: "in_response_to", Value: d.InResponseTo})
	}

	update := bson.D{
		{Key: "$setOnInsert", Value: setOnInsert},
		{Key: "$inc", Value: bson.D{{Key: "count", Value: 1}}},
	}
	if p.ReplaceTags {
		set = append(set, bson.E{Key: "tags", Value: tags})
	} else {
		update = append(update, bson.E{Key: "$addToSet", Value: bson.D{{Key: "tags", Value: bson.D{{Key: "$each", Value: tags}}}}})
	}
	return append(update, bson.E{Key: "$set", Value: set})
}
