package portal

import "testing"

func TestMergeSetCookies(t *testing.T) {
	dst := map[string]string{}
	MergeSetCookies(dst, []string{
		"JSESSIONIDCAS=abc123; Path=/cas; HttpOnly",
		"route=node1",
		"malformed-without-equals",
		"=no-name",
	})

	if dst["JSESSIONIDCAS"] != "abc123" {
		t.Errorf("JSESSIONIDCAS = %q, want abc123", dst["JSESSIONIDCAS"])
	}
	if dst["route"] != "node1" {
		t.Errorf("route = %q, want node1", dst["route"])
	}
	if len(dst) != 2 {
		t.Errorf("merged %d cookies, want 2: %v", len(dst), dst)
	}
}

func TestMergeSetCookies_LastWins(t *testing.T) {
	dst := map[string]string{}
	MergeSetCookies(dst, []string{"route=old; Path=/"})
	MergeSetCookies(dst, []string{"route=new; Path=/"})

	if dst["route"] != "new" {
		t.Errorf("route = %q, want new", dst["route"])
	}
}

func TestCookieHeader(t *testing.T) {
	cookies := map[string]string{
		"route":         "node1",
		"JSESSIONIDCAS": "abc",
	}

	got := CookieHeader(cookies, "epay456")
	want := "JSESSIONIDCAS=abc; route=node1; JSESSIONID=epay456"
	if got != want {
		t.Errorf("CookieHeader = %q, want %q", got, want)
	}

	// 没有jsessionid时不追加JSESSIONID
	got = CookieHeader(cookies, "")
	want = "JSESSIONIDCAS=abc; route=node1"
	if got != want {
		t.Errorf("CookieHeader = %q, want %q", got, want)
	}
}

func TestExtractJSessionID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://host/epay/main;jsessionid=ABC123?ticket=ST-1", "ABC123"},
		{"http://host/epay/main;jsessionid=XYZ&other=1", "XYZ"},
		{"http://host/epay/main;jsessionid=TAIL", "TAIL"},
		{"http://host/epay/main", ""},
	}
	for _, tt := range tests {
		if got := ExtractJSessionID(tt.url); got != tt.want {
			t.Errorf("ExtractJSessionID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestInsertJSessionID(t *testing.T) {
	got := insertJSessionID("http://host/epay/electric/load4electricbill?elcsysid=2", "S1")
	want := "http://host/epay/electric/load4electricbill;jsessionid=S1?elcsysid=2"
	if got != want {
		t.Errorf("insertJSessionID = %q, want %q", got, want)
	}

	got = insertJSessionID("http://host/epay/", "S1")
	want = "http://host/epay/;jsessionid=S1"
	if got != want {
		t.Errorf("insertJSessionID = %q, want %q", got, want)
	}

	if got := insertJSessionID("http://host/epay/", ""); got != "http://host/epay/" {
		t.Errorf("insertJSessionID with empty id = %q", got)
	}
}
