package astilibav

import (
	"fmt"
	"sort"

	"github.com/asticode/go-astiav"
)

type dictionary struct {
	d *astiav.Dictionary
}

func newDictionary(m map[string]string) (d *dictionary, err error) {
	// Create dictionary
	d = &dictionary{d: astiav.NewDictionary()}

	// Fill
	if err = mapToDictionary(d.d, m); err != nil {
		d.free()
		return
	}
	return
}

func (d *dictionary) free() {
	d.d.Free()
}

// unused returns the keys libav didn't consume
func (d *dictionary) unused() (ks []string) {
	for k := range dictionaryToMap(d.d) {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return
}

func dictionaryToMap(d *astiav.Dictionary) (m map[string]string) {
	m = make(map[string]string)
	if d == nil {
		return
	}
	var prev *astiav.DictionaryEntry
	for {
		if prev = d.Get("", prev, astiav.NewDictionaryFlags(astiav.DictionaryFlagIgnoreSuffix)); prev == nil {
			break
		}
		m[prev.Key()] = prev.Value()
	}
	return
}

func mapToDictionary(d *astiav.Dictionary, m map[string]string) (err error) {
	var ks []string
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	for _, k := range ks {
		if err = d.Set(k, m[k], astiav.NewDictionaryFlags()); err != nil {
			err = fmt.Errorf("astilibav: setting dictionary key %s failed: %w", k, err)
			return
		}
	}
	return
}
