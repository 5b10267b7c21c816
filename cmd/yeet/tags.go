// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yeet-rs/yeet/cmd/yeet/tagpick"
	"github.com/yeet-rs/yeet/lib/authorization"
	"github.com/yeet-rs/yeet/lib/session"
	"github.com/yeet-rs/yeet/lib/tag"
)

// anyTagName names the wildcard in policy scopes.
const anyTagName = "*"

// tagIndex maps between tag names and tags.
type tagIndex struct {
	byName map[string]tag.Tag
	names  map[tag.Tag]string
}

func newTagIndex(definitions []authorization.Definition) tagIndex {
	index := tagIndex{byName: make(map[string]tag.Tag), names: make(map[tag.Tag]string)}
	for _, definition := range definitions {
		index.byName[definition.Name] = definition.Tag
		index.names[definition.Tag] = definition.Name
	}
	return index
}

func fetchTags(ctx context.Context, client caller) (tagIndex, error) {
	var definitions []authorization.Definition
	if err := client.Call(ctx, session.ActionTagList, nil, &definitions); err != nil {
		return tagIndex{}, err
	}
	return newTagIndex(definitions), nil
}

// resolve maps names to a tag set. "*" is the wildcard, allowed only
// when allowAny is set.
func (index tagIndex) resolve(names []string, allowAny bool) (tag.Set, error) {
	set := tag.NewSet()
	for _, name := range names {
		if name == anyTagName {
			if !allowAny {
				return nil, fmt.Errorf("the wildcard %q cannot tag a resource", anyTagName)
			}
			set.Add(tag.Any())
			continue
		}
		t, ok := index.byName[name]
		if !ok {
			if suggestion := tagpick.Suggest(name, index.allNames()); suggestion != "" {
				return nil, fmt.Errorf("unknown tag %q (did you mean %q?)", name, suggestion)
			}
			return nil, fmt.Errorf("unknown tag %q", name)
		}
		set.Add(t)
	}
	return set, nil
}

// display returns the sorted tag names of set. Tags missing from the
// index show as their token.
func (index tagIndex) display(set tag.Set) []string {
	names := make([]string, 0, set.Len())
	for t := range set {
		switch name, ok := index.names[t]; {
		case t.IsAny():
			names = append(names, anyTagName)
		case ok:
			names = append(names, name)
		default:
			names = append(names, t.Token())
		}
	}
	sort.Strings(names)
	return names
}

func (index tagIndex) allNames() []string {
	names := make([]string, 0, len(index.byName))
	for name := range index.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// creationTags settles the tags for a new resource of kind when none
// were given: the single creatable tag is left to the server, several
// go through the chooser.
func (env *environment) creationTags(ctx context.Context, client caller, kind authorization.ResourceKind) (tag.Set, error) {
	var creatable []authorization.Definition
	if err := client.Call(ctx, session.ActionTagCreatable, session.CreatableRequest{Kind: kind}, &creatable); err != nil {
		return nil, err
	}
	switch len(creatable) {
	case 0:
		return nil, fmt.Errorf("you may not create a %s with any tag", kind)
	case 1:
		return nil, nil
	}

	names := make([]string, len(creatable))
	for i, definition := range creatable {
		names[i] = definition.Name
	}
	if env.choose == nil {
		return nil, fmt.Errorf("choose tags for the new %s with --tag (one of: %s)", kind, strings.Join(names, ", "))
	}

	options := make([]tagpick.Option, len(creatable))
	for i, definition := range creatable {
		options[i] = tagpick.Option{Label: definition.Name, Value: definition.Tag.Token()}
	}
	picked, err := env.choose(fmt.Sprintf("Tags for the new %s", kind), options)
	if err != nil {
		return nil, err
	}
	set := tag.NewSet()
	for _, option := range picked {
		set.Add(tag.Specific(option.Value))
	}
	return set, nil
}
