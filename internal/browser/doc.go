// Package browser is the browser collaborator of the discovery engine.
//
// Session describes what the engine needs from a rendering browser:
// navigation with a wait policy, selector probing across frames, key
// presses, in-page evaluation, cookies and a raw network tap. RodSession
// implements it on top of go-rod and the Chrome DevTools Protocol.
package browser
